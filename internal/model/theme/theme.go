package theme

// Theme is one entry of the fixed widget color catalog.
type Theme struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Gradient string `json:"gradient"`
	Color    string `json:"color"`
}

// Seed provides the catalog in display order. The first entry is the default.
func Seed() []Theme {
	return []Theme{
		{ID: "purple", Name: "Purple", Gradient: "from-purple-500 to-purple-600", Color: "hsl(var(--theme-purple))"},
		{ID: "blue", Name: "Blue", Gradient: "from-blue-400 to-blue-500", Color: "hsl(var(--theme-blue))"},
		{ID: "green", Name: "Green", Gradient: "from-green-500 to-green-600", Color: "hsl(var(--theme-green))"},
		{ID: "orange", Name: "Orange", Gradient: "from-orange-500 to-orange-600", Color: "hsl(var(--theme-orange))"},
		{ID: "pink", Name: "Pink", Gradient: "from-pink-500 to-pink-600", Color: "hsl(var(--theme-pink))"},
	}
}
