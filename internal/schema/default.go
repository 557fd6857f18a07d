package schema

var defaultSchema = MustNew(
	Field{
		Name:        "CadastralDesignation",
		Kind:        Scalar,
		Type:        String,
		Description: "The full legal name of the property (fastighetsbeteckning), e.g. 'Stockholm Marevik 23'.",
		Unambiguous: true,
		Evaluated:   true,
	},
	Field{
		Name:        "InspectionDate",
		Kind:        Scalar,
		Type:        String,
		Description: "The year and month the inspection was carried out, formatted YYYY-MM.",
		Unambiguous: true,
		Evaluated:   true,
	},
	Field{
		Name: "MoistureDamage",
		Kind: Nested,
		Type: Bool,
		SubKeys: []string{
			"mentions_garage",
			"mentions_källare",
			"mentions_roof",
			"mentions_balcony",
			"mentions_bjälklag",
			"mentions_facade",
		},
		Description: "Whether moisture or water damage is clearly mentioned at each location. " +
			"true only when the report states damage or moisture issues there.",
		Evaluated: true,
	},
	Field{
		Name:    "RenovationNeeds",
		Kind:    Nested,
		Type:    Bool,
		SubKeys: []string{"roof", "garage", "facade", "balcony", "källare", "bjälklag"},
		Description: "Whether the report clearly recommends or plans renovation of each area. " +
			"Phrases like 'slitage', 'dåligt skick' or 'bör åtgärdas' count as a need.",
		Evaluated: true,
	},
	Field{
		Name:    "AsbestosPresence",
		Kind:    Nested,
		Type:    Bool,
		SubKeys: []string{"Measured", "presence"},
		Description: "'Measured' is true if asbestos was explicitly measured or tested. " +
			"'presence' is true if asbestos is said to be present in the building.",
		Evaluated: true,
	},
	Field{
		Name: "SummaryInsights",
		Kind: Scalar,
		Type: String,
		Description: "A short summary in plain Swedish (1-2 sentences) of the clearly stated renovation actions. " +
			"null if nothing actionable is described.",
		Evaluated: true,
	},
)

// Default returns the built-in inspection report schema.
func Default() *Schema {
	return defaultSchema
}
