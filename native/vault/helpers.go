package vault

import "strings"

func normalizeAsset(asset string) string {
	return strings.ToUpper(strings.TrimSpace(asset))
}
