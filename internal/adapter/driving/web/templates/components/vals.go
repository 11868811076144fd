package components

import (
	"encoding/json"

	vm "github.com/ericfisherdev/prharmony/internal/adapter/driving/web/viewmodel"
)

// suggestionVals is the hx-vals payload posted when a suggestion is picked.
func suggestionVals(s vm.SuggestionViewModel) (string, error) {
	data, err := json.Marshal(map[string]string{
		"id":        s.ID,
		"primary":   s.PrimaryLabel,
		"secondary": s.SecondaryLabel,
	})
	if err != nil {
		return "", err
	}
	return string(data), nil
}
