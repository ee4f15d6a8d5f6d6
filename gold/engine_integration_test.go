//go:build integration

package gold_test

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/opendatafab/sirene-lake/gold"
	"github.com/opendatafab/sirene-lake/store"
	"github.com/opendatafab/sirene-lake/table"
)

// Exercises the aggregation arithmetic against an embedded DuckDB instance
// rather than generated SQL text. Build with -tags integration.

func silverEtab(siret, siren, dept, sector string) table.Row {
	return table.Row{
		"siret":            siret,
		"siren":            siren,
		"departement":      dept,
		"secteur_activite": sector,
	}
}

func silverUnit(siren, categorie string) table.Row {
	return table.Row{
		"siren":                               siren,
		"denominationUniteLegale":             "ACME " + siren,
		"nomUniteLegale":                      nil,
		"prenom1UniteLegale":                  nil,
		"categorieEntreprise":                 categorie,
		"categorieJuridiqueUniteLegale":       5710.0,
		"economieSocialeSolidaireUniteLegale": "N",
	}
}

func TestEngineAggregatesOverDuckDB(t *testing.T) {
	st, err := store.Open(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer st.Close()
	ctx := context.Background()

	etabs := table.New("siret", "siren", "departement", "secteur_activite")
	etabs.Append(silverEtab("11111111100011", "111111111", "75", "Commerce"))
	etabs.Append(silverEtab("11111111100022", "111111111", "75", "Commerce"))
	etabs.Append(silverEtab("22222222200011", "222222222", "75", "Information-communication"))
	etabs.Append(silverEtab("33333333300011", "333333333", "13", "Commerce"))
	if err := st.WritePartition(ctx, store.LayerSilver, "etablissements", etabs); err != nil {
		t.Fatalf("write etablissements: %v", err)
	}

	units := table.New("siren", "denominationUniteLegale", "nomUniteLegale",
		"prenom1UniteLegale", "categorieEntreprise", "categorieJuridiqueUniteLegale",
		"economieSocialeSolidaireUniteLegale")
	units.Append(silverUnit("111111111", "PME"))
	units.Append(silverUnit("222222222", "GE"))
	units.Append(silverUnit("333333333", "PME"))
	if err := st.WritePartition(ctx, store.LayerSilver, "unites_legales", units); err != nil {
		t.Fatalf("write unites_legales: %v", err)
	}

	// Department population reference, including one department ("84") with
	// no establishments at all.
	refQuery := "SELECT * FROM (VALUES ('13', 50000), ('75', 100000), ('84', 10000)) AS t(departement, population)"
	if err := st.CopyQuery(ctx, refQuery, store.LayerGold, "population_departements"); err != nil {
		t.Fatalf("write reference: %v", err)
	}
	refs := map[string]string{
		"population_departements": st.PartitionPath(store.LayerGold, "population_departements"),
	}

	engine := gold.NewEngine(st, refs, zap.NewNop())
	res, err := engine.Run(ctx, gold.DefaultKPIs())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.MasterRows != 4 {
		t.Errorf("master rows = %d, want 4", res.MasterRows)
	}

	counts, err := st.ReadPartition(ctx, store.LayerGold, "etablissements_par_departement", 0)
	if err != nil {
		t.Fatalf("read counts: %v", err)
	}
	if counts.Len() != 2 {
		t.Fatalf("count rows = %d", counts.Len())
	}
	if counts.Rows[0].String("departement") != "75" || counts.Rows[0]["total_etablissements"] != int64(3) {
		t.Errorf("first group = %v", counts.Rows[0])
	}
	if counts.Rows[1].String("departement") != "13" || counts.Rows[1]["total_etablissements"] != int64(1) {
		t.Errorf("second group = %v", counts.Rows[1])
	}

	dominant, err := st.ReadPartition(ctx, store.LayerGold, "secteur_dominant_par_departement", 0)
	if err != nil {
		t.Fatalf("read dominant: %v", err)
	}
	for _, row := range dominant.Rows {
		if row.String("secteur_activite") != "Commerce" {
			t.Errorf("dominant sector for %s = %s", row.String("departement"), row.String("secteur_activite"))
		}
	}

	categories, err := st.ReadPartition(ctx, store.LayerGold, "repartition_categorie_entreprise", 0)
	if err != nil {
		t.Fatalf("read categories: %v", err)
	}
	if categories.Len() != 2 {
		t.Fatalf("category rows = %d", categories.Len())
	}
	if categories.Rows[0].String("categorieEntreprise") != "PME" || categories.Rows[0]["total"] != int64(3) {
		t.Errorf("first category = %v", categories.Rows[0])
	}

	density, err := st.ReadPartition(ctx, store.LayerGold, "densite_etablissements_par_departement", 0)
	if err != nil {
		t.Fatalf("read density: %v", err)
	}
	if density.Len() != 3 {
		t.Fatalf("density rows = %d", density.Len())
	}
	// Reference spine order: 13, 75, 84.
	if rate, ok := density.Rows[1].Float("etablissements_pour_10k_habitants"); !ok || rate != 0.3 {
		t.Errorf("rate for 75 = %v", density.Rows[1]["etablissements_pour_10k_habitants"])
	}
	empty := density.Rows[2]
	if empty.String("departement") != "84" {
		t.Fatalf("spine order: %v", density.Rows)
	}
	if empty["total_etablissements"] != int64(0) {
		t.Errorf("empty department count = %v", empty["total_etablissements"])
	}
	if empty["etablissements_pour_10k_habitants"] != nil {
		t.Errorf("empty department rate = %v, want NULL", empty["etablissements_pour_10k_habitants"])
	}
}
