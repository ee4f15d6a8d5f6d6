package quality

import (
	"strings"
	"testing"

	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/table"
)

func silverEtab(siret, postal string, age any) table.Row {
	return table.Row{
		"siret":                   siret,
		"codePostalEtablissement": postal,
		"age_entreprise":          age,
	}
}

func TestKeyUniquenessCheck(t *testing.T) {
	c := contract.Etablissements()

	tb := table.New("siret")
	tb.Append(table.Row{"siret": "10000000000011"})
	tb.Append(table.Row{"siret": "20000000000011"})
	if res := NewKeyUniquenessCheck(tb, c).Run(); !res.Passed {
		t.Errorf("unique keys must pass: %s", res.Details)
	}

	tb.Append(table.Row{"siret": "10000000000011"})
	res := NewKeyUniquenessCheck(tb, c).Run()
	if res.Passed {
		t.Error("duplicate key must fail")
	}
	if res.Dataset != "etablissements" || res.RowCount != 3 {
		t.Errorf("result = %+v", res)
	}
}

func TestPostalFormatCheck(t *testing.T) {
	tb := table.New("siret", "codePostalEtablissement", "age_entreprise")
	tb.Append(silverEtab("1", "75001", nil))
	if res := NewPostalFormatCheck(tb, "etablissements").Run(); !res.Passed {
		t.Errorf("well-formed postal codes must pass: %s", res.Details)
	}

	tb.Append(silverEtab("2", "7500", nil))
	if res := NewPostalFormatCheck(tb, "etablissements").Run(); res.Passed {
		t.Error("malformed postal code must fail")
	}
}

func TestPostalFormatCheckSkipsDatasetsWithoutPostal(t *testing.T) {
	tb := table.New("siren")
	tb.Append(table.Row{"siren": "123456789"})
	if res := NewPostalFormatCheck(tb, "unites_legales").Run(); !res.Passed {
		t.Errorf("dataset without postal column must pass: %s", res.Details)
	}
}

func TestAgeBoundsCheck(t *testing.T) {
	tb := table.New("siret", "codePostalEtablissement", "age_entreprise")
	tb.Append(silverEtab("1", "75001", 12.0))
	tb.Append(silverEtab("2", "75002", nil)) // NULL ages are fine
	if res := NewAgeBoundsCheck(tb, "etablissements", 300).Run(); !res.Passed {
		t.Errorf("plausible ages must pass: %s", res.Details)
	}

	tb.Append(silverEtab("3", "75003", -1.0))
	tb.Append(silverEtab("4", "75004", 500.0))
	res := NewAgeBoundsCheck(tb, "etablissements", 300).Run()
	if res.Passed {
		t.Error("out-of-bounds ages must fail")
	}
	if !strings.Contains(res.Details, "2") {
		t.Errorf("details should count violations: %s", res.Details)
	}
}

func TestRowReconciliationCheck(t *testing.T) {
	tb := table.New("siret")
	tb.Append(table.Row{"siret": "1"})
	tb.Append(table.Row{"siret": "2"})

	if res := NewRowReconciliationCheck(tb, "etablissements", 2).Run(); !res.Passed {
		t.Errorf("matching counts must pass: %s", res.Details)
	}
	if res := NewRowReconciliationCheck(tb, "etablissements", 3).Run(); res.Passed {
		t.Error("mismatched counts must fail")
	}
}

func TestRunAll(t *testing.T) {
	c := contract.Etablissements()
	tb := table.New("siret", "codePostalEtablissement", "age_entreprise")
	tb.Append(silverEtab("10000000000011", "75001", 5.0))

	checks := []Check{
		NewKeyUniquenessCheck(tb, c),
		NewPostalFormatCheck(tb, "etablissements"),
		NewAgeBoundsCheck(tb, "etablissements", 300),
		NewRowReconciliationCheck(tb, "etablissements", 1),
	}
	results, err := RunAll(checks)
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if len(results) != 4 {
		t.Errorf("results = %d", len(results))
	}

	// One failing check fails the whole set and names the culprit.
	checks = append(checks, NewRowReconciliationCheck(tb, "etablissements", 99))
	if _, err := RunAll(checks); err == nil {
		t.Fatal("expected error with failing check")
	} else if !strings.Contains(err.Error(), "row_reconciliation") {
		t.Errorf("error should name the failed check: %v", err)
	}
}
