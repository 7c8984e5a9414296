package obis

import (
	"strings"
	"testing"

	"github.com/xtxerr/lenedastat/config"
	"github.com/xtxerr/lenedastat/internal/errors"
)

func TestLookup_Default(t *testing.T) {
	c, err := Lookup(config.DefaultOBISCode)
	if err != nil {
		t.Fatalf("default code missing: %v", err)
	}

	if c.ServiceType != ServiceConsumption {
		t.Errorf("expected service type %s, got %s", ServiceConsumption, c.ServiceType)
	}
	if c.Unit != UnitKW || c.DeviceClass != ClassPower || c.StateClass != StateMeasurement {
		t.Errorf("unexpected power view: %+v", c)
	}
	if c.AggregatedUnit != UnitKWh || c.AggregatedDeviceClass != ClassEnergy || c.AggregatedStateClass != StateTotalIncreasing {
		t.Errorf("unexpected energy view: %+v", c)
	}
}

func TestLookup_Production(t *testing.T) {
	c, err := Lookup("1-1:2.29.0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(c.Name, "Production") || c.ServiceType != ServiceProduction {
		t.Errorf("unexpected production entry: %+v", c)
	}
}

func TestLookup_Reactive(t *testing.T) {
	c, err := Lookup("1-1:3.29.0")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(c.Name, "Reactive") || !strings.Contains(c.Name, "Consumption") {
		t.Errorf("unexpected name %q", c.Name)
	}
	if c.DeviceClass != ClassReactivePower || c.Unit != UnitKVAR {
		t.Errorf("unexpected reactive entry: %+v", c)
	}
}

func TestLookup_Unknown(t *testing.T) {
	_, err := Lookup("9-9:9.9.9")
	if !errors.IsNotFound(err) {
		t.Errorf("expected not-found error, got %v", err)
	}
}

func TestCatalogue_Complete(t *testing.T) {
	expected := []string{
		"1-1:1.29.0", "1-1:2.29.0", "1-1:3.29.0", "1-1:4.29.0",
		"1-65:1.29.1", "1-65:1.29.2", "1-65:1.29.3", "1-65:1.29.4", "1-65:1.29.9",
		"1-65:2.29.1", "1-65:2.29.2", "1-65:2.29.3", "1-65:2.29.4", "1-65:2.29.9",
	}

	for _, code := range expected {
		if !Known(code) {
			t.Errorf("OBIS code %s not in catalogue", code)
		}
	}
	if len(Codes()) != len(expected) {
		t.Errorf("expected %d codes, got %d", len(expected), len(Codes()))
	}

	for _, code := range Codes() {
		c, _ := Lookup(code)
		if c.AggregatedName == "" || c.AggregatedUnit == "" || c.AggregatedDeviceClass == "" {
			t.Errorf("%s: missing aggregated fields", code)
		}
		if c.AggregatedStateClass != StateTotalIncreasing {
			t.Errorf("%s: expected total_increasing energy view", code)
		}
	}
}
