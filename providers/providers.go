// Package providers registers every built-in provider with media_fetch.DefaultProviderRegistry when imported.
package providers

import (
	_ "github.com/alanbriolat/media-fetch/provider/raw"
	_ "github.com/alanbriolat/media-fetch/provider/youtube"
	_ "github.com/alanbriolat/media-fetch/providers/bin"
)
