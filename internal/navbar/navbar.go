package navbar

import "net/url"

const (
	Brand = "ZeptoBook"

	menuParam = "menu"
	menuOpen  = "open"
)

type Link struct {
	Title string
	Href  string
}

var links = []Link{
	{Title: "Home", Href: "#home"},
	{Title: "Books", Href: "#books"},
	{Title: "Contact", Href: "#contact"},
}

// Menu is the disclosure state of the small-screen menu. The zero value is closed.
type Menu struct {
	Open bool
}

func (m *Menu) Toggle() {
	m.Open = !m.Open
}

func (m *Menu) Links() []Link {
	ret := make([]Link, len(links))
	copy(ret, links)
	return ret
}

// FromQuery restores the menu state carried in the page URL
func FromQuery(q url.Values) Menu {
	return Menu{Open: q.Get(menuParam) == menuOpen}
}

// ToggleQuery returns a copy of q in which the menu state is flipped
func (m Menu) ToggleQuery(q url.Values) url.Values {
	ret := make(url.Values, len(q))
	for k, v := range q {
		ret[k] = append([]string(nil), v...)
	}

	m.Toggle()
	if m.Open {
		ret.Set(menuParam, menuOpen)
	} else {
		ret.Del(menuParam)
	}

	return ret
}
