package contract

import "testing"

func TestBuiltinContractsAreValid(t *testing.T) {
	for _, name := range []string{"etablissements", "unites_legales"} {
		c, ok := ByName(name)
		if !ok {
			t.Fatalf("ByName(%q) not found", name)
		}
		if err := c.Validate(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, ok := ByName("no_such_dataset"); ok {
		t.Fatal("expected unknown dataset to miss")
	}
}

func TestContractValidate(t *testing.T) {
	cases := []struct {
		name     string
		contract Contract
		wantErr  bool
	}{
		{
			name: "valid",
			contract: Contract{
				Name:       "t",
				PrimaryKey: "id",
				Columns:    []Column{{Name: "id", Type: TypeString}},
			},
		},
		{
			name: "missing primary key column",
			contract: Contract{
				Name:       "t",
				PrimaryKey: "id",
				Columns:    []Column{{Name: "other", Type: TypeString}},
			},
			wantErr: true,
		},
		{
			name: "nullable primary key",
			contract: Contract{
				Name:       "t",
				PrimaryKey: "id",
				Columns:    []Column{{Name: "id", Type: TypeString, Nullable: true}},
			},
			wantErr: true,
		},
		{
			name: "duplicate column",
			contract: Contract{
				Name:       "t",
				PrimaryKey: "id",
				Columns: []Column{
					{Name: "id", Type: TypeString},
					{Name: "id", Type: TypeString},
				},
			},
			wantErr: true,
		},
		{
			name: "default on non-string column",
			contract: Contract{
				Name:       "t",
				PrimaryKey: "id",
				Columns: []Column{
					{Name: "id", Type: TypeString},
					{Name: "n", Type: TypeFloat, Default: "0"},
				},
			},
			wantErr: true,
		},
	}

	for _, tc := range cases {
		err := tc.contract.Validate()
		if tc.wantErr && err == nil {
			t.Errorf("%s: expected error", tc.name)
		}
		if !tc.wantErr && err != nil {
			t.Errorf("%s: unexpected error: %v", tc.name, err)
		}
	}
}

func TestInputColumnsExcludeDerived(t *testing.T) {
	c := Etablissements()
	for _, name := range c.InputColumns() {
		col, _ := c.Column(name)
		if col.Derived {
			t.Errorf("derived column %s returned by InputColumns", name)
		}
	}
	if _, ok := c.Column("departement"); !ok {
		t.Fatal("departement missing from contract")
	}
	for _, name := range c.InputColumns() {
		if name == "departement" {
			t.Error("departement should not be an input column")
		}
	}
}
