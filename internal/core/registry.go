package core

import "sort"

// Category classifies an entry and carries its display metadata.
// The Color field is a presentation hint only.
type Category struct {
	Title   string
	Color   string
	Expense bool
}

// Categories is the static registry of known category keys. It is
// read-only for the lifetime of the process; entries referencing keys
// outside this map degrade to income rather than failing.
var Categories = map[string]Category{
	"tithe":            {Title: "Dízimo", Color: "purple", Expense: false},
	"offering":         {Title: "Oferta", Color: "gold", Expense: false},
	"specialOffering":  {Title: "Oferta Especial", Color: "orange", Expense: false},
	"billsToPay":       {Title: "Aluguel", Color: "red", Expense: true},
	"electricity":      {Title: "Conta de Luz", Color: "yellow", Expense: true},
	"water":            {Title: "Conta de Água", Color: "blue", Expense: true},
	"internet":         {Title: "Internet", Color: "green", Expense: true},
	"waterPurchase":    {Title: "Compra de Água", Color: "lightblue", Expense: true},
	"cleaningProducts": {Title: "Produtos de Limpeza", Color: "brown", Expense: true},
	"disposableCups":   {Title: "Copos Descartáveis", Color: "pink", Expense: true},
	"genericExpense":   {Title: "Saída", Color: "gray", Expense: true},
}

// CategoryTitle returns the display title for a key, falling back to the
// key itself for unregistered categories.
func CategoryTitle(key string) string {
	if cat, ok := Categories[key]; ok {
		return cat.Title
	}
	return key
}

// CategoryKeys returns the registry keys in a stable order for form
// rendering and report layout.
func CategoryKeys() []string {
	keys := make([]string, 0, len(Categories))
	for k := range Categories {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
