// Package obis describes the OBIS codes served by the metering-data API.
package obis

import (
	"sort"

	"github.com/xtxerr/lenedastat/internal/errors"
)

// Units
const (
	UnitKW    = "kW"
	UnitKWh   = "kWh"
	UnitKVAR  = "kVAR"
	UnitKVARh = "kVARh"
)

// Device classes
const (
	ClassPower          = "power"
	ClassEnergy         = "energy"
	ClassReactivePower  = "reactive_power"
	ClassReactiveEnergy = "reactive_energy"
)

// State classes
const (
	StateMeasurement     = "measurement"
	StateTotalIncreasing = "total_increasing"
)

// Service types
const (
	ServiceConsumption = "Consumption"
	ServiceProduction  = "Production"
)

// Code describes one OBIS code for both derived views.
type Code struct {
	Code        string
	Description string
	ServiceType string

	// Power view
	Name        string
	Unit        string
	DeviceClass string
	StateClass  string

	// Energy view
	AggregatedName        string
	AggregatedUnit        string
	AggregatedDeviceClass string
	AggregatedStateClass  string
}

func active(code, description, service, name string) Code {
	return Code{
		Code:                  code,
		Description:           description,
		ServiceType:           service,
		Name:                  name,
		Unit:                  UnitKW,
		DeviceClass:           ClassPower,
		StateClass:            StateMeasurement,
		AggregatedName:        name + " Energy",
		AggregatedUnit:        UnitKWh,
		AggregatedDeviceClass: ClassEnergy,
		AggregatedStateClass:  StateTotalIncreasing,
	}
}

func reactive(code, description, service, name string) Code {
	return Code{
		Code:                  code,
		Description:           description,
		ServiceType:           service,
		Name:                  name,
		Unit:                  UnitKVAR,
		DeviceClass:           ClassReactivePower,
		StateClass:            StateMeasurement,
		AggregatedName:        name + " Energy",
		AggregatedUnit:        UnitKVARh,
		AggregatedDeviceClass: ClassReactiveEnergy,
		AggregatedStateClass:  StateTotalIncreasing,
	}
}

var catalogue = map[string]Code{}

func register(c Code) {
	catalogue[c.Code] = c
}

func init() {
	register(active("1-1:1.29.0", "Measured active consumption", ServiceConsumption, "Active Consumption"))
	register(active("1-1:2.29.0", "Measured active production", ServiceProduction, "Active Production"))
	register(reactive("1-1:3.29.0", "Measured reactive consumption", ServiceConsumption, "Reactive Consumption"))
	register(reactive("1-1:4.29.0", "Measured reactive production", ServiceProduction, "Reactive Production"))

	register(active("1-65:1.29.1", "Consumption covered by production sharing layer 1 (AIR)", ServiceConsumption, "Sharing Group L1 Consumption"))
	register(active("1-65:1.29.3", "Consumption covered by production sharing layer 2 (ACR/ACF/AC1)", ServiceConsumption, "Sharing Group L2 Consumption"))
	register(active("1-65:1.29.2", "Consumption covered by production sharing layer 3 (CEL)", ServiceConsumption, "Sharing Group L3 Consumption"))
	register(active("1-65:1.29.4", "Consumption covered by production sharing layer 4 (APS/CER/CEN)", ServiceConsumption, "Sharing Group L4 Consumption"))
	register(active("1-65:1.29.9", "Remaining consumption after sharing, invoiced by supplier", ServiceConsumption, "Remaining Consumption"))

	register(active("1-65:2.29.1", "Production shared within sharing layer 1 (AIR)", ServiceProduction, "Sharing Group L1 Production"))
	register(active("1-65:2.29.3", "Production shared within sharing layer 2 (ACR/ACF/AC1)", ServiceProduction, "Sharing Group L2 Production"))
	register(active("1-65:2.29.2", "Production shared within sharing layer 3 (CEL)", ServiceProduction, "Sharing Group L3 Production"))
	register(active("1-65:2.29.4", "Production shared within sharing layer 4 (APS/CER/CEN)", ServiceProduction, "Sharing Group L4 Production"))
	register(active("1-65:2.29.9", "Remaining production after sharing, sold to market", ServiceProduction, "Remaining Production"))
}

// Lookup returns the catalogue entry for code.
func Lookup(code string) (Code, error) {
	c, ok := catalogue[code]
	if !ok {
		return Code{}, errors.Wrapf(errors.ErrOBISNotFound, "%q", code)
	}
	return c, nil
}

// Known reports whether code is in the catalogue.
func Known(code string) bool {
	_, ok := catalogue[code]
	return ok
}

// Codes returns all known codes in sorted order.
func Codes() []string {
	out := make([]string, 0, len(catalogue))
	for code := range catalogue {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}
