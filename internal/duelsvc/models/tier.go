package models

// ServerTier is a difficulty partition under which rooms are listed.
// Tiers are fixed at build time and never mutated.
type ServerTier struct {
	ID      string `json:"server_id"`
	Label   string `json:"label"`
	Ordinal int    `json:"ordinal"`
}

var Tiers = []ServerTier{
	{ID: "saussure", Label: "Saussure", Ordinal: 1},
	{ID: "frege", Label: "Frege", Ordinal: 2},
	{ID: "russell", Label: "Russell", Ordinal: 3},
	{ID: "wittgenstein", Label: "Wittgenstein", Ordinal: 4},
}

func TierByID(id string) (ServerTier, bool) {
	for _, t := range Tiers {
		if t.ID == id {
			return t, true
		}
	}
	return ServerTier{}, false
}
