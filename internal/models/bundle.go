package models

import "fmt"

// Bundle is a purchasable Bingwa Sokoni package.
type Bundle struct {
	Name  string `json:"name"`
	Price int    `json:"price"` // Ksh
	Code  string `json:"code"`
}

func (b Bundle) Label() string {
	return fmt.Sprintf("%s @ Ksh %d", b.Name, b.Price)
}

// Catalog holds the offerings per bundle category.
var Catalog = map[string][]Bundle{
	"data": {
		{Name: "1GB, 1hr", Price: 19, Code: "DATA1GB1HR"},
		{Name: "1.5GB, 3hrs", Price: 50, Code: "DATA1.5GB3HR"},
	},
	"sms": {
		{Name: "20 SMS, 1day", Price: 5, Code: "SMS20DAY"},
	},
	"voice": {
		{Name: "45 minutes, 3hrs", Price: 21, Code: "VOICE45MIN"},
	},
}

// FindBundle looks up a bundle by category and code.
func FindBundle(category, code string) (Bundle, bool) {
	for _, b := range Catalog[category] {
		if b.Code == code {
			return b, true
		}
	}
	return Bundle{}, false
}
