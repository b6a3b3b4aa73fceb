package webhook

import "strings"

// NormalizeTopic maps webhook type spellings onto one registry key:
// "app/uninstalled", "app-uninstalled" and "APP_UNINSTALLED" all become
// "app_uninstalled".
func NormalizeTopic(topic string) string {
	t := strings.TrimSpace(strings.ToLower(topic))
	t = strings.NewReplacer("/", "_", ".", "_", "-", "_").Replace(t)
	for strings.Contains(t, "__") {
		t = strings.ReplaceAll(t, "__", "_")
	}
	return strings.Trim(t, "_")
}
