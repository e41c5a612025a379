package geo

const (
	Europe       = "Europe"
	NorthAmerica = "North America"
	SouthAmerica = "South America"
	Asia         = "Asia"
	Oceania      = "Oceania"
	Africa       = "Africa"
)

var defaultCountries = []Country{
	{Code: "DE", Name: "Germany", Continent: Europe, Aliases: []string{"Deutschland"}},
	{Code: "FR", Name: "France", Continent: Europe},
	{Code: "NL", Name: "Netherlands", Continent: Europe, Aliases: []string{"Holland", "The Netherlands", "Nederland"}},
	{Code: "BE", Name: "Belgium", Continent: Europe, Aliases: []string{"België", "Belgique"}},
	{Code: "LU", Name: "Luxembourg", Continent: Europe},
	{Code: "ES", Name: "Spain", Continent: Europe, Aliases: []string{"España"}},
	{Code: "PT", Name: "Portugal", Continent: Europe},
	{Code: "IT", Name: "Italy", Continent: Europe, Aliases: []string{"Italia"}},
	{Code: "GB", Name: "United Kingdom", Continent: Europe, Aliases: []string{"UK", "Great Britain", "England", "Britain"}},
	{Code: "IE", Name: "Ireland", Continent: Europe},
	{Code: "AT", Name: "Austria", Continent: Europe, Aliases: []string{"Österreich"}},
	{Code: "CH", Name: "Switzerland", Continent: Europe, Aliases: []string{"Schweiz", "Suisse"}},
	{Code: "PL", Name: "Poland", Continent: Europe, Aliases: []string{"Polska"}},
	{Code: "CZ", Name: "Czech Republic", Continent: Europe, Aliases: []string{"Czechia"}},
	{Code: "HU", Name: "Hungary", Continent: Europe},
	{Code: "SE", Name: "Sweden", Continent: Europe},
	{Code: "DK", Name: "Denmark", Continent: Europe},
	{Code: "NO", Name: "Norway", Continent: Europe},
	{Code: "FI", Name: "Finland", Continent: Europe},
	{Code: "GR", Name: "Greece", Continent: Europe},
	{Code: "RO", Name: "Romania", Continent: Europe},
	{Code: "TR", Name: "Turkey", Continent: Europe, Aliases: []string{"Türkiye"}},
	{Code: "US", Name: "United States", Continent: NorthAmerica, Aliases: []string{"USA", "United States of America", "America"}},
	{Code: "CA", Name: "Canada", Continent: NorthAmerica},
	{Code: "MX", Name: "Mexico", Continent: NorthAmerica, Aliases: []string{"México"}},
	{Code: "BR", Name: "Brazil", Continent: SouthAmerica, Aliases: []string{"Brasil"}},
	{Code: "AR", Name: "Argentina", Continent: SouthAmerica},
	{Code: "CL", Name: "Chile", Continent: SouthAmerica},
	{Code: "CO", Name: "Colombia", Continent: SouthAmerica},
	{Code: "AE", Name: "United Arab Emirates", Continent: Asia, Aliases: []string{"UAE", "Emirates"}},
	{Code: "SA", Name: "Saudi Arabia", Continent: Asia, Aliases: []string{"KSA"}},
	{Code: "QA", Name: "Qatar", Continent: Asia},
	{Code: "CN", Name: "China", Continent: Asia},
	{Code: "HK", Name: "Hong Kong", Continent: Asia},
	{Code: "JP", Name: "Japan", Continent: Asia},
	{Code: "KR", Name: "South Korea", Continent: Asia, Aliases: []string{"Korea"}},
	{Code: "IN", Name: "India", Continent: Asia},
	{Code: "SG", Name: "Singapore", Continent: Asia},
	{Code: "TH", Name: "Thailand", Continent: Asia},
	{Code: "MY", Name: "Malaysia", Continent: Asia},
	{Code: "ID", Name: "Indonesia", Continent: Asia},
	{Code: "AU", Name: "Australia", Continent: Oceania},
	{Code: "NZ", Name: "New Zealand", Continent: Oceania},
	{Code: "ZA", Name: "South Africa", Continent: Africa},
	{Code: "EG", Name: "Egypt", Continent: Africa},
	{Code: "MA", Name: "Morocco", Continent: Africa},
	{Code: "NG", Name: "Nigeria", Continent: Africa},
}
