package model

// GuideStep is one page of the onboarding guide.
type GuideStep struct {
	Title       string `json:"title"`
	Slug        string `json:"slug"`
	Order       int    `json:"order"`
	Description string `json:"description,omitempty"`
	Content     string `json:"-"`
	HTMLContent string `json:"html"`
}
