package grammar

// defaultEntries is the built-in Moominvalley vocabulary.
var defaultEntries = map[string]Entry{
	"andreas":     {Person: "Andreas"},
	"clara":       {Person: "Clara Magic"},
	"my":          {Person: "Mittle My"},
	"snufkin":     {Person: "Snufkin"},
	"stinky":      {Person: "Stinky"},
	"moomintroll": {Person: "Moomintroll"},
	"moominmamma": {Person: "Moominmamma"},
	"moominpappa": {Person: "Moominpappa"},
	"snorkmaiden": {Person: "Snorkmaiden"},
	"sniff":       {Person: "Sniff"},

	"monday":    {Day: "Monday"},
	"tuesday":   {Day: "Tuesday"},
	"wednesday": {Day: "Wednesday"},
	"thursday":  {Day: "Thursday"},
	"friday":    {Day: "Friday"},

	"9":  {Time: "09:00"},
	"10": {Time: "10:00"},
	"11": {Time: "11:00"},
	"12": {Time: "12:00"},
	"13": {Time: "13:00"},
	"14": {Time: "14:00"},
	"15": {Time: "15:00"},
	"16": {Time: "16:00"},

	// Affirmative and negative keywords carry no value but are known words.
	"yes":     {},
	"yeah":    {},
	"sure":    {},
	"yep":     {},
	"correct": {},
	"ok":      {},
	"no":      {},
	"nope":    {},
	"not":     {},
	"wrong":   {},
	"never":   {},
}

// Default returns the built-in grammar table.
func Default() *Table {
	return New(defaultEntries)
}
