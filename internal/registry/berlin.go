package registry

// berlinDistricts are the 12 Bezirke in official numbering.
var berlinDistricts = []Entry{
	{ID: "01", Name: "Mitte"},
	{ID: "02", Name: "Friedrichshain-Kreuzberg"},
	{ID: "03", Name: "Pankow"},
	{ID: "04", Name: "Charlottenburg-Wilmersdorf"},
	{ID: "05", Name: "Spandau"},
	{ID: "06", Name: "Steglitz-Zehlendorf"},
	{ID: "07", Name: "Tempelhof-Schöneberg", Aliases: []string{"Tempelhof-Schoeneberg"}},
	{ID: "08", Name: "Neukölln", Aliases: []string{"Neukoelln"}},
	{ID: "09", Name: "Treptow-Köpenick", Aliases: []string{"Treptow-Koepenick"}},
	{ID: "10", Name: "Marzahn-Hellersdorf"},
	{ID: "11", Name: "Lichtenberg"},
	{ID: "12", Name: "Reinickendorf"},
}

// Berlin returns the built-in registry of Berlin's 12 districts.
func Berlin() *Registry {
	r, err := New(berlinDistricts)
	if err != nil {
		panic(err)
	}
	return r
}
