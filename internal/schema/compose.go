package schema

// Compose concatenates the pages of several templates into one stepper. With a
// single template the pages are returned as-is. With more than one, page keys
// are namespaced "<templateID>/<pageKey>" so two templates that both have a
// "contact" page keep separate completion entries. Conditions still reference
// field keys and are left untouched.
func Compose(templates ...*Template) []Page {
	if len(templates) == 1 {
		return clonePages(templates[0].Pages)
	}

	var pages []Page
	for _, t := range templates {
		for _, p := range clonePages(t.Pages) {
			p.Key = t.ID + "/" + p.Key
			pages = append(pages, p)
		}
	}
	return pages
}

func clonePages(pages []Page) []Page {
	out := make([]Page, len(pages))
	for i, p := range pages {
		if p.Conditional != nil {
			c := *p.Conditional
			p.Conditional = &c
		}
		out[i] = p
	}
	return out
}
