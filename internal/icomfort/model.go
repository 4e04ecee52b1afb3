package icomfort

import (
	"fmt"
	"sort"
	"sync"
)

// HVACMode is a zone operating mode as the service spells it on the wire.
type HVACMode string

const (
	HVACOff           HVACMode = "off"
	HVACHeat          HVACMode = "heat"
	HVACCool          HVACMode = "cool"
	HVACHeatCool      HVACMode = "heat and cool"
	HVACEmergencyHeat HVACMode = "emergency heat"
)

// FanMode is a zone fan mode as the service spells it on the wire.
type FanMode string

const (
	FanAuto      FanMode = "auto"
	FanOn        FanMode = "on"
	FanCirculate FanMode = "circulate"
)

func validHVACMode(m HVACMode) bool {
	switch m {
	case HVACOff, HVACHeat, HVACCool, HVACHeatCool, HVACEmergencyHeat:
		return true
	}
	return false
}

func validFanMode(m FanMode) bool {
	switch m {
	case FanAuto, FanOn, FanCirculate:
		return true
	}
	return false
}

// System is one physical controller, identified by its stable sysId. It owns
// a zone-index → Zone map. Systems are created during login/home enumeration
// and never pruned mid-session; one that stops reporting simply stops
// receiving updates.
type System struct {
	sysID string

	mu             sync.RWMutex
	name           string
	productType    string
	temperatureUnit string
	outdoorTemp    float64
	numberOfZones  int
	status         string
	zones          map[int]*Zone
}

func newSystem(sysID string) *System {
	return &System{sysID: sysID, zones: make(map[int]*Zone)}
}

// SysID returns the controller's stable external identifier.
func (s *System) SysID() string { return s.sysID }

// getOrCreateZone is idempotent: it returns the existing zone for the index
// or creates an inactive placeholder with deterministic defaults.
func (s *System) getOrCreateZone(index int) *Zone {
	s.mu.Lock()
	defer s.mu.Unlock()
	if z, ok := s.zones[index]; ok {
		return z
	}
	z := &Zone{system: s, index: index}
	s.zones[index] = z
	return z
}

// ActiveZones filters the zone map down to zones that have reported a
// temperature at least once, ordered by zone index for a stable view.
func (s *System) ActiveZones() []*Zone {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Zone, 0, len(s.zones))
	for _, z := range s.zones {
		if z.Active() {
			out = append(out, z)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// applyFragment overlays the present fields of a system-level fragment.
func (s *System) applyFragment(f *SystemFragment) {
	if f == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.Name != nil {
		s.name = *f.Name
	}
	if f.ProductType != nil {
		s.productType = *f.ProductType
	}
	if f.TemperatureUnit != nil {
		s.temperatureUnit = *f.TemperatureUnit
	}
	if f.OutdoorTemperature != nil {
		s.outdoorTemp = *f.OutdoorTemperature
	}
	if f.NumberOfZones != nil {
		s.numberOfZones = *f.NumberOfZones
	}
	if f.Status != nil {
		s.status = *f.Status
	}
}

// SystemState is an immutable snapshot of a System for API consumers.
type SystemState struct {
	SysID              string  `json:"sys_id"`
	Name               string  `json:"name"`
	ProductType        string  `json:"product_type"`
	TemperatureUnit    string  `json:"temperature_unit"`
	OutdoorTemperature float64 `json:"outdoor_temperature"`
	NumberOfZones      int     `json:"number_of_zones"`
	Status             string  `json:"status"`
	ActiveZones        int     `json:"active_zones"`
}

// Snapshot returns a point-in-time copy of the system's attributes.
func (s *System) Snapshot() SystemState {
	active := len(s.ActiveZones())
	s.mu.RLock()
	defer s.mu.RUnlock()
	return SystemState{
		SysID:              s.sysID,
		Name:               s.name,
		ProductType:        s.productType,
		TemperatureUnit:    s.temperatureUnit,
		OutdoorTemperature: s.outdoorTemp,
		NumberOfZones:      s.numberOfZones,
		Status:             s.status,
		ActiveZones:        active,
	}
}

// Zone is one controllable thermostat-like unit within a System. Its three
// attribute groups (config, status, active period) arrive independently and
// merge without clobbering fields absent from the current fragment. All
// access goes through the zone's own lock, so a merge is atomic per zone.
type Zone struct {
	system *System
	index  int

	mu     sync.RWMutex
	active bool
	config zoneConfig
	status zoneStatus
	period zonePeriod
}

type zoneConfig struct {
	name           string
	enabled        bool
	heating        bool
	cooling        bool
	emergencyHeat  bool
	humidification bool
	maxHsp, maxHspC float64
	minHsp, minHspC float64
	maxCsp, maxCspC float64
	minCsp, minCspC float64
}

type zoneStatus struct {
	temperature       float64
	temperatureC      float64
	temperatureStatus string
	humidity          float64
	humidityStatus    string
	fan               bool
	defrost           bool
	auxHeat           bool
	damper            int
	demand            float64
}

type zonePeriod struct {
	systemMode HVACMode
	fanMode    FanMode
	hsp, hspC  float64
	csp, cspC  float64
	sp, spC    float64
	husp       int
	desp       int
}

// Index returns the zone's index within its system.
func (z *Zone) Index() int { return z.index }

// SystemID returns the owning controller's sysId.
func (z *Zone) SystemID() string { return z.system.sysID }

// ID derives the zone's single external-facing identifier from the
// (system id, zone index) pair. The derivation is deterministic so the same
// zone always maps to the same identifier.
func (z *Zone) ID() string {
	return fmt.Sprintf("%s_%d", z.system.sysID, z.index)
}

// Active reports whether the zone has ever received a status update carrying
// a temperature. Until then it is only a placeholder and is not exposed to
// consumers.
func (z *Zone) Active() bool {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return z.active
}

// applyFragment overlays only the fields present in the fragment onto the
// zone, leaving everything else untouched, and reports whether the zone is
// active after the merge. The fragment is discarded afterwards.
func (z *Zone) applyFragment(f *ZoneFragment) bool {
	z.mu.Lock()
	defer z.mu.Unlock()

	if c := f.Config; c != nil {
		if c.Name != nil {
			z.config.name = *c.Name
		}
		if c.Enabled != nil {
			z.config.enabled = *c.Enabled
		}
		if c.Heating != nil {
			z.config.heating = *c.Heating
		}
		if c.Cooling != nil {
			z.config.cooling = *c.Cooling
		}
		if c.EmergencyHeat != nil {
			z.config.emergencyHeat = *c.EmergencyHeat
		}
		if c.Humidification != nil {
			z.config.humidification = *c.Humidification
		}
		if c.MaxHsp != nil {
			z.config.maxHsp = *c.MaxHsp
		}
		if c.MaxHspC != nil {
			z.config.maxHspC = *c.MaxHspC
		}
		if c.MinHsp != nil {
			z.config.minHsp = *c.MinHsp
		}
		if c.MinHspC != nil {
			z.config.minHspC = *c.MinHspC
		}
		if c.MaxCsp != nil {
			z.config.maxCsp = *c.MaxCsp
		}
		if c.MaxCspC != nil {
			z.config.maxCspC = *c.MaxCspC
		}
		if c.MinCsp != nil {
			z.config.minCsp = *c.MinCsp
		}
		if c.MinCspC != nil {
			z.config.minCspC = *c.MinCspC
		}
	}

	if st := f.Status; st != nil {
		if st.Temperature != nil {
			z.status.temperature = *st.Temperature
			// First reported temperature activates the zone, permanently.
			z.active = true
		}
		if st.TemperatureC != nil {
			z.status.temperatureC = *st.TemperatureC
		}
		if st.TemperatureStatus != nil {
			z.status.temperatureStatus = *st.TemperatureStatus
		}
		if st.Humidity != nil {
			z.status.humidity = *st.Humidity
		}
		if st.HumidityStatus != nil {
			z.status.humidityStatus = *st.HumidityStatus
		}
		if st.Fan != nil {
			z.status.fan = *st.Fan
		}
		if st.Defrost != nil {
			z.status.defrost = *st.Defrost
		}
		if st.AuxHeat != nil {
			z.status.auxHeat = *st.AuxHeat
		}
		if st.Damper != nil {
			z.status.damper = *st.Damper
		}
		if st.Demand != nil {
			z.status.demand = *st.Demand
		}
	}

	if p := f.Period; p != nil {
		if p.SystemMode != nil {
			z.period.systemMode = HVACMode(*p.SystemMode)
		}
		if p.FanMode != nil {
			z.period.fanMode = FanMode(*p.FanMode)
		}
		if p.Hsp != nil {
			z.period.hsp = *p.Hsp
		}
		if p.HspC != nil {
			z.period.hspC = *p.HspC
		}
		if p.Csp != nil {
			z.period.csp = *p.Csp
		}
		if p.CspC != nil {
			z.period.cspC = *p.CspC
		}
		if p.Sp != nil {
			z.period.sp = *p.Sp
		}
		if p.SpC != nil {
			z.period.spC = *p.SpC
		}
		if p.Husp != nil {
			z.period.husp = *p.Husp
		}
		if p.Desp != nil {
			z.period.desp = *p.Desp
		}
	}

	return z.active
}

// ZoneState is an immutable snapshot of a Zone for API consumers and
// observers.
type ZoneState struct {
	ID     string `json:"id"`
	SysID  string `json:"sys_id"`
	Index  int    `json:"index"`
	Active bool   `json:"active"`

	Name           string `json:"name"`
	Enabled        bool   `json:"enabled"`
	Heating        bool   `json:"heating_capable"`
	Cooling        bool   `json:"cooling_capable"`
	EmergencyHeat  bool   `json:"emergency_heat_capable"`
	Humidification bool   `json:"humidification_capable"`

	MaxHsp  float64 `json:"max_hsp"`
	MaxHspC float64 `json:"max_hsp_c"`
	MinHsp  float64 `json:"min_hsp"`
	MinHspC float64 `json:"min_hsp_c"`
	MaxCsp  float64 `json:"max_csp"`
	MaxCspC float64 `json:"max_csp_c"`
	MinCsp  float64 `json:"min_csp"`
	MinCspC float64 `json:"min_csp_c"`

	Temperature       float64 `json:"temperature"`
	TemperatureC      float64 `json:"temperature_c"`
	TemperatureStatus string  `json:"temperature_status"`
	Humidity          float64 `json:"humidity"`
	HumidityStatus    string  `json:"humidity_status"`
	Fan               bool    `json:"fan"`
	Defrost           bool    `json:"defrost"`
	AuxHeat           bool    `json:"aux_heat"`
	Damper            int     `json:"damper"`
	Demand            float64 `json:"demand"`

	SystemMode HVACMode `json:"system_mode"`
	FanMode    FanMode  `json:"fan_mode"`
	Hsp        float64  `json:"hsp"`
	HspC       float64  `json:"hsp_c"`
	Csp        float64  `json:"csp"`
	CspC       float64  `json:"csp_c"`
	Sp         float64  `json:"sp"`
	SpC        float64  `json:"sp_c"`
	Husp       int      `json:"husp"`
	Desp       int      `json:"desp"`
}

// Snapshot returns a point-in-time copy of the zone's merged state.
func (z *Zone) Snapshot() ZoneState {
	z.mu.RLock()
	defer z.mu.RUnlock()
	return ZoneState{
		ID:     z.ID(),
		SysID:  z.system.sysID,
		Index:  z.index,
		Active: z.active,

		Name:           z.config.name,
		Enabled:        z.config.enabled,
		Heating:        z.config.heating,
		Cooling:        z.config.cooling,
		EmergencyHeat:  z.config.emergencyHeat,
		Humidification: z.config.humidification,
		MaxHsp:         z.config.maxHsp,
		MaxHspC:        z.config.maxHspC,
		MinHsp:         z.config.minHsp,
		MinHspC:        z.config.minHspC,
		MaxCsp:         z.config.maxCsp,
		MaxCspC:        z.config.maxCspC,
		MinCsp:         z.config.minCsp,
		MinCspC:        z.config.minCspC,

		Temperature:       z.status.temperature,
		TemperatureC:      z.status.temperatureC,
		TemperatureStatus: z.status.temperatureStatus,
		Humidity:          z.status.humidity,
		HumidityStatus:    z.status.humidityStatus,
		Fan:               z.status.fan,
		Defrost:           z.status.defrost,
		AuxHeat:           z.status.auxHeat,
		Damper:            z.status.damper,
		Demand:            z.status.demand,

		SystemMode: z.period.systemMode,
		FanMode:    z.period.fanMode,
		Hsp:        z.period.hsp,
		HspC:       z.period.hspC,
		Csp:        z.period.csp,
		CspC:       z.period.cspC,
		Sp:         z.period.sp,
		SpC:        z.period.spC,
		Husp:       z.period.husp,
		Desp:       z.period.desp,
	}
}

// Update fragments.
//
// Every field is a pointer so "absent" is distinguishable from an explicit
// zero or false; merge only touches present fields. Fragments are ephemeral:
// applied field by field, then discarded.

// UpdateFragment is the Data payload of one inbound property-change message:
// at most one system-level fragment and zero or more zone fragments.
type UpdateFragment struct {
	System *SystemFragment `json:"system,omitempty"`
	Zones  []ZoneFragment  `json:"zones,omitempty"`
}

type SystemFragment struct {
	Name               *string  `json:"name,omitempty"`
	ProductType        *string  `json:"productType,omitempty"`
	TemperatureUnit    *string  `json:"temperatureUnit,omitempty"`
	OutdoorTemperature *float64 `json:"outdoorTemperature,omitempty"`
	NumberOfZones      *int     `json:"numberOfZones,omitempty"`
	Status             *string  `json:"status,omitempty"`
}

type ZoneFragment struct {
	ID     int                 `json:"id"`
	Config *ZoneConfigFragment `json:"config,omitempty"`
	Status *ZoneStatusFragment `json:"status,omitempty"`
	Period *ZonePeriodFragment `json:"period,omitempty"`
}

type ZoneConfigFragment struct {
	Name           *string  `json:"name,omitempty"`
	Enabled        *bool    `json:"enabled,omitempty"`
	Heating        *bool    `json:"heatingOption,omitempty"`
	Cooling        *bool    `json:"coolingOption,omitempty"`
	EmergencyHeat  *bool    `json:"emergencyHeatingOption,omitempty"`
	Humidification *bool    `json:"humidificationOption,omitempty"`
	MaxHsp         *float64 `json:"maxHsp,omitempty"`
	MaxHspC        *float64 `json:"maxHspC,omitempty"`
	MinHsp         *float64 `json:"minHsp,omitempty"`
	MinHspC        *float64 `json:"minHspC,omitempty"`
	MaxCsp         *float64 `json:"maxCsp,omitempty"`
	MaxCspC        *float64 `json:"maxCspC,omitempty"`
	MinCsp         *float64 `json:"minCsp,omitempty"`
	MinCspC        *float64 `json:"minCspC,omitempty"`
}

type ZoneStatusFragment struct {
	Temperature       *float64 `json:"temperature,omitempty"`
	TemperatureC      *float64 `json:"temperatureC,omitempty"`
	TemperatureStatus *string  `json:"temperatureStatus,omitempty"`
	Humidity          *float64 `json:"humidity,omitempty"`
	HumidityStatus    *string  `json:"humidityStatus,omitempty"`
	Fan               *bool    `json:"fan,omitempty"`
	Defrost           *bool    `json:"defrost,omitempty"`
	AuxHeat           *bool    `json:"auxHeat,omitempty"`
	Damper            *int     `json:"damper,omitempty"`
	Demand            *float64 `json:"demand,omitempty"`
}

type ZonePeriodFragment struct {
	SystemMode *string  `json:"systemMode,omitempty"`
	FanMode    *string  `json:"fanMode,omitempty"`
	Hsp        *float64 `json:"hsp,omitempty"`
	HspC       *float64 `json:"hspC,omitempty"`
	Csp        *float64 `json:"csp,omitempty"`
	CspC       *float64 `json:"cspC,omitempty"`
	Sp         *float64 `json:"sp,omitempty"`
	SpC        *float64 `json:"spC,omitempty"`
	Husp       *int     `json:"husp,omitempty"`
	Desp       *int     `json:"desp,omitempty"`
}
