package silver

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/opendatafab/sirene-lake/contract"
	"github.com/opendatafab/sirene-lake/table"
)

func validEtabRow(siret string) table.Row {
	return table.Row{
		"siret":                           siret,
		"siren":                           siret[:9],
		"etatAdministratifEtablissement":  "A",
		"dateCreationEtablissement":       "2010-06-15",
		"codePostalEtablissement":         "75001",
		"libelleCommuneEtablissement":     "PARIS",
		"activitePrincipaleEtablissement": "62.01Z",
		"trancheEffectifsEtablissement":   "11",
		"etablissementSiege":              true,
		"enseigne1Etablissement":          "ACME",
		"ingested_at":                     "2026-08-01 00:00:00",
	}
}

func TestValidateRowAccepts(t *testing.T) {
	c := contract.Etablissements()
	outcome := ValidateRow("etablissements:1", validEtabRow("12345678900011"), c)
	if outcome.Rejection != nil {
		t.Fatalf("unexpected rejection: %+v", *outcome.Rejection)
	}
	if got := outcome.Row["siret"]; got != "12345678900011" {
		t.Errorf("siret = %v", got)
	}
	if _, ok := outcome.Row["dateCreationEtablissement"].(time.Time); !ok {
		t.Errorf("dateCreationEtablissement not coerced to time.Time: %T",
			outcome.Row["dateCreationEtablissement"])
	}
	if got := outcome.Row["etablissementSiege"]; got != true {
		t.Errorf("etablissementSiege = %v", got)
	}
}

func TestValidateRowRejections(t *testing.T) {
	c := contract.Etablissements()

	cases := []struct {
		name     string
		mutate   func(table.Row)
		wantRule string
		wantCol  string
	}{
		{
			name:     "missing required column",
			mutate:   func(r table.Row) { delete(r, "codePostalEtablissement") },
			wantRule: RulePresence,
			wantCol:  "codePostalEtablissement",
		},
		{
			name:     "null required value",
			mutate:   func(r table.Row) { r["siret"] = "  " },
			wantRule: RulePresence,
			wantCol:  "siret",
		},
		{
			name:     "bad length",
			mutate:   func(r table.Row) { r["siret"] = "123" },
			wantRule: RuleLength,
			wantCol:  "siret",
		},
		{
			name:     "bad pattern",
			mutate:   func(r table.Row) { r["codePostalEtablissement"] = "7500X" },
			wantRule: RulePattern,
			wantCol:  "codePostalEtablissement",
		},
		{
			name:     "enum violation",
			mutate:   func(r table.Row) { r["etatAdministratifEtablissement"] = "Z" },
			wantRule: RuleEnum,
			wantCol:  "etatAdministratifEtablissement",
		},
		{
			name:     "unparseable date",
			mutate:   func(r table.Row) { r["dateCreationEtablissement"] = "not-a-date" },
			wantRule: RuleType,
			wantCol:  "dateCreationEtablissement",
		},
		{
			name:     "unparseable bool",
			mutate:   func(r table.Row) { r["etablissementSiege"] = "peut-être" },
			wantRule: RuleType,
			wantCol:  "etablissementSiege",
		},
	}

	for _, tc := range cases {
		raw := validEtabRow("12345678900011")
		tc.mutate(raw)
		outcome := ValidateRow("etablissements:12345678900011", raw, c)
		if outcome.Rejection == nil {
			t.Errorf("%s: expected rejection", tc.name)
			continue
		}
		if outcome.Rejection.Rule != tc.wantRule {
			t.Errorf("%s: rule = %s, want %s", tc.name, outcome.Rejection.Rule, tc.wantRule)
		}
		if outcome.Rejection.Column != tc.wantCol {
			t.Errorf("%s: column = %s, want %s", tc.name, outcome.Rejection.Column, tc.wantCol)
		}
	}
}

func TestValidateRowCollectsAllViolations(t *testing.T) {
	c := contract.Etablissements()
	raw := validEtabRow("12345678900011")
	raw["siret"] = "123"
	raw["codePostalEtablissement"] = "XX"
	outcome := ValidateRow("etablissements:123", raw, c)
	if outcome.Rejection == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(outcome.Rejection.Reason, "siret") ||
		!strings.Contains(outcome.Rejection.Reason, "codePostalEtablissement") {
		t.Errorf("reason should list both violations, got %q", outcome.Rejection.Reason)
	}
}

func TestValidateRowAppliesDefaults(t *testing.T) {
	c := contract.Etablissements()
	raw := validEtabRow("12345678900011")
	raw["etatAdministratifEtablissement"] = ""
	raw["trancheEffectifsEtablissement"] = nil
	raw["enseigne1Etablissement"] = "   "
	outcome := ValidateRow("etablissements:12345678900011", raw, c)
	if outcome.Rejection != nil {
		t.Fatalf("unexpected rejection: %+v", *outcome.Rejection)
	}
	if got := outcome.Row["etatAdministratifEtablissement"]; got != "A" {
		t.Errorf("etatAdministratifEtablissement = %v, want A", got)
	}
	if got := outcome.Row["trancheEffectifsEtablissement"]; got != "00" {
		t.Errorf("trancheEffectifsEtablissement = %v, want 00", got)
	}
	if got := outcome.Row["enseigne1Etablissement"]; got != "Non renseigné" {
		t.Errorf("enseigne1Etablissement = %v", got)
	}
}

func TestValidateRowNullsOutOfRangeDate(t *testing.T) {
	c := contract.Etablissements()
	raw := validEtabRow("12345678900011")
	raw["dateCreationEtablissement"] = "1600-01-01"
	outcome := ValidateRow("etablissements:12345678900011", raw, c)
	if outcome.Rejection != nil {
		t.Fatalf("out-of-range date on nullable column must not reject: %+v", *outcome.Rejection)
	}
	if outcome.Row["dateCreationEtablissement"] != nil {
		t.Errorf("want NULL, got %v", outcome.Row["dateCreationEtablissement"])
	}
}

// Every input row lands on exactly one side of the split, so
// accepted + rejected always reconciles with the input count.
func TestValidateCompleteness(t *testing.T) {
	c := contract.Etablissements()
	batch := table.New(c.InputColumns()...)
	batch.Append(validEtabRow("11111111100011"))
	bad := validEtabRow("22222222200011")
	bad["codePostalEtablissement"] = "bad"
	batch.Append(bad)
	batch.Append(validEtabRow("33333333300011"))

	res := Validate(batch, c)
	if res.Input != 3 {
		t.Fatalf("input = %d", res.Input)
	}
	if res.Accepted.Len()+len(res.Rejections) != res.Input {
		t.Errorf("accepted %d + rejected %d != input %d",
			res.Accepted.Len(), len(res.Rejections), res.Input)
	}
	if res.Accepted.Len() != 2 {
		t.Errorf("accepted = %d, want 2", res.Accepted.Len())
	}
}

func TestDedupeFirstWins(t *testing.T) {
	c := contract.Etablissements()
	batch := table.New(c.InputColumns()...)
	first := validEtabRow("11111111100011")
	first["libelleCommuneEtablissement"] = "FIRST"
	second := validEtabRow("11111111100011")
	second["libelleCommuneEtablissement"] = "SECOND"
	batch.Append(first)
	batch.Append(second)

	res := Validate(batch, c)
	if res.Accepted.Len() != 1 {
		t.Fatalf("accepted = %d, want 1", res.Accepted.Len())
	}
	if got := res.Accepted.Rows[0].String("libelleCommuneEtablissement"); got != "FIRST" {
		t.Errorf("kept row = %s, want FIRST", got)
	}
	if len(res.Rejections) != 1 || res.Rejections[0].Rule != RuleUnique {
		t.Errorf("rejections = %+v", res.Rejections)
	}
}

func TestValidateDeterministic(t *testing.T) {
	c := contract.Etablissements()
	build := func() *table.Table {
		b := table.New(c.InputColumns()...)
		b.Append(validEtabRow("11111111100011"))
		b.Append(validEtabRow("22222222200011"))
		bad := validEtabRow("33333333300011")
		bad["siren"] = "short"
		b.Append(bad)
		return b
	}

	a := Validate(build(), c)
	b := Validate(build(), c)
	if a.Accepted.Len() != b.Accepted.Len() || len(a.Rejections) != len(b.Rejections) {
		t.Fatal("two runs over identical input diverged")
	}
	for i := range a.Accepted.Rows {
		if a.Accepted.Rows[i].String("siret") != b.Accepted.Rows[i].String("siret") {
			t.Errorf("row %d ordering diverged", i)
		}
	}
}

func TestCheckQualityGate(t *testing.T) {
	res := Result{Input: 10, Rejections: make([]Rejection, 3)}

	if err := CheckQualityGate("etablissements", res, 0.5); err != nil {
		t.Errorf("rate 0.3 under threshold 0.5 must pass: %v", err)
	}
	err := CheckQualityGate("etablissements", res, 0.2)
	if err == nil {
		t.Fatal("rate 0.3 over threshold 0.2 must fail")
	}
	var qe *BatchQualityError
	if !errors.As(err, &qe) {
		t.Fatalf("error type = %T", err)
	}
	if qe.Rejected != 3 || qe.Input != 10 {
		t.Errorf("gate error = %+v", qe)
	}

	// Empty batch never trips the gate.
	if err := CheckQualityGate("etablissements", Result{}, 0); err != nil {
		t.Errorf("empty batch: %v", err)
	}
}

func TestRejectionTableSorted(t *testing.T) {
	rt := RejectionTable([]Rejection{
		{SourceRowRef: "etablissements:2", Column: "siret", Rule: RuleLength},
		{SourceRowRef: "etablissements:1", Column: "siren", Rule: RulePattern},
	})
	if rt.Rows[0].String("source_row_ref") != "etablissements:1" {
		t.Errorf("rows not sorted by source_row_ref: %v", rt.Rows)
	}
	for _, col := range []string{"source_row_ref", "column", "rule", "raw_value", "reason"} {
		if !rt.HasColumn(col) {
			t.Errorf("missing report column %s", col)
		}
	}
}
