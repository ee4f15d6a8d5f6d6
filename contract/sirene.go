package contract

import "regexp"

// The two SIRENE dataset contracts. Column names follow the upstream INSEE
// extract so bronze columns map one-to-one.

var (
	siretPattern  = regexp.MustCompile(`^\d{14}$`)
	sirenPattern  = regexp.MustCompile(`^\d{9}$`)
	postalPattern = regexp.MustCompile(`^\d{5}$`)
	deptPattern   = regexp.MustCompile(`^\d{2}$`)
)

// Etablissements returns the contract for the establishment dataset.
// One row per establishment, keyed by the 14-digit siret.
func Etablissements() Contract {
	return Contract{
		Name:       "etablissements",
		Version:    "v1",
		PrimaryKey: "siret",
		Columns: []Column{
			{Name: "siret", Type: TypeString, Required: true, Length: 14, Pattern: siretPattern, Unique: true},
			{Name: "siren", Type: TypeString, Required: true, Length: 9, Pattern: sirenPattern},
			{Name: "etatAdministratifEtablissement", Type: TypeString, Nullable: true, Enum: []string{"A", "F"}, Default: "A"},
			{Name: "dateCreationEtablissement", Type: TypeDate, Nullable: true},
			{Name: "codePostalEtablissement", Type: TypeString, Required: true, Length: 5, Pattern: postalPattern},
			{Name: "libelleCommuneEtablissement", Type: TypeString, Nullable: true},
			{Name: "activitePrincipaleEtablissement", Type: TypeString, Nullable: true},
			{Name: "trancheEffectifsEtablissement", Type: TypeString, Nullable: true, Default: "00"},
			{Name: "etablissementSiege", Type: TypeBool, Nullable: true},
			{Name: "enseigne1Etablissement", Type: TypeString, Nullable: true, Default: "Non renseigné"},

			{Name: "departement", Type: TypeString, Derived: true, Pattern: deptPattern, Length: 2},
			{Name: "secteur_activite", Type: TypeString, Derived: true},
			{Name: "age_entreprise", Type: TypeFloat, Derived: true, Nullable: true},

			{Name: "ingested_at", Type: TypeDate, Required: true},
		},
	}
}

// UnitesLegales returns the contract for the legal unit dataset.
// One row per legal unit, keyed by the 9-digit siren.
func UnitesLegales() Contract {
	return Contract{
		Name:       "unites_legales",
		Version:    "v1",
		PrimaryKey: "siren",
		Columns: []Column{
			{Name: "siren", Type: TypeString, Required: true, Length: 9, Pattern: sirenPattern, Unique: true},
			{Name: "denominationUniteLegale", Type: TypeString, Nullable: true},
			{Name: "nomUniteLegale", Type: TypeString, Nullable: true},
			{Name: "prenom1UniteLegale", Type: TypeString, Nullable: true},
			{Name: "categorieEntreprise", Type: TypeString, Nullable: true, Enum: []string{"PME", "ETI", "GE"}},
			{Name: "categorieJuridiqueUniteLegale", Type: TypeFloat, Nullable: true},
			{Name: "activitePrincipaleUniteLegale", Type: TypeString, Nullable: true},
			{Name: "etatAdministratifUniteLegale", Type: TypeString, Nullable: true, Enum: []string{"A", "C"}},
			{Name: "dateCreationUniteLegale", Type: TypeDate, Nullable: true},
			{Name: "economieSocialeSolidaireUniteLegale", Type: TypeString, Nullable: true, Enum: []string{"O", "N"}, Default: "N"},

			{Name: "secteur_activite", Type: TypeString, Derived: true},
			{Name: "age_entreprise", Type: TypeFloat, Derived: true, Nullable: true},

			{Name: "ingested_at", Type: TypeDate, Required: true},
		},
	}
}

// ByName resolves a dataset name to its contract.
func ByName(name string) (Contract, bool) {
	switch name {
	case "etablissements":
		return Etablissements(), true
	case "unites_legales":
		return UnitesLegales(), true
	}
	return Contract{}, false
}
