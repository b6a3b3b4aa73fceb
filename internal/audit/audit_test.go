package audit

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type failing struct{ calls int }

func (f *failing) Record(ctx context.Context, shopID int64, action, actor string, metadata any) error {
	f.calls++
	return errors.New("insert failed")
}

func TestLog_SwallowsRecorderErrors(t *testing.T) {
	f := &failing{}
	assert.NotPanics(t, func() { Log(context.Background(), f, 1, ActionInstalled, "merchant", nil) })
	assert.Equal(t, 1, f.calls)
}

func TestLog_NilRecorder(t *testing.T) {
	assert.NotPanics(t, func() { Log(context.Background(), nil, 1, ActionInstalled, "merchant", nil) })
}
