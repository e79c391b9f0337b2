package accountable

import "embed"

// GuideFS holds the onboarding guide pages.
//
//go:embed content/guide/*.md
var GuideFS embed.FS

// ServiceWorker is served at /sw.js.
//
//go:embed web/sw.js
var ServiceWorker []byte
