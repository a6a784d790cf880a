// Package meter turns protocol-version-specific meter payloads into a flat,
// uniform sequence of typed samples.
package meter

import (
	"strconv"
	"strings"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
)

// Attribute qualifies one sampled value. Missing sub-fields are filled with
// the OCPP defaults during normalization.
type Attribute struct {
	Context   string
	Format    string
	Measurand string
	Location  string
	Unit      string
	Phase     string
}

// Sample is one normalized meter reading.
type Sample struct {
	Timestamp     time.Time
	ConnectorID   int
	TransactionID int64
	Value         float64
	Attribute     Attribute
}

// DefaultAttribute returns the attribute defaults the OCPP spec documents
// for an absent attribute object.
func DefaultAttribute() Attribute {
	return Attribute{
		Context:   protocol.ContextSamplePeriodic,
		Format:    protocol.FormatRaw,
		Measurand: protocol.MeasurandEnergyActiveImportRegister,
		Location:  protocol.LocationOutlet,
		Unit:      protocol.UnitWh,
	}
}

// Vendors whose devices only report periodic snapshots through the
// Sample.Clock context. For everyone else Clock samples are dropped.
var clockContextVendors = map[string]bool{
	"ABB": true,
}

// Normalize flattens a raw MeterValues payload into typed samples, accepting
// both the 1.6 (meterValue/sampledValue) and 1.5 (values/value) shapes.
// Arrival order is preserved.
func Normalize(req protocol.MeterValuesRequest, ocppVersion string) []Sample {
	entries := req.MeterValue
	fallback := req.Values
	if ocppVersion == protocol.Version15 {
		entries, fallback = req.Values, req.MeterValue
	}
	if len(entries) == 0 {
		// Some firmwares use the other version's key.
		entries = fallback
	}

	var samples []Sample
	for _, entry := range entries {
		for _, sv := range entry.SampledValue {
			sample, ok := buildSample(req, entry.Timestamp, sv)
			if ok {
				samples = append(samples, sample)
			}
		}
		for _, lv := range entry.Value {
			attrs := lv.Attributes
			attrs.Value = lv.Value
			sample, ok := buildSample(req, entry.Timestamp, attrs)
			if ok {
				samples = append(samples, sample)
			}
		}
	}
	return samples
}

func buildSample(req protocol.MeterValuesRequest, ts time.Time, sv protocol.SampledValue) (Sample, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(sv.Value), 64)
	if err != nil {
		return Sample{}, false
	}

	attr := DefaultAttribute()
	if sv.Context != "" {
		attr.Context = sv.Context
	}
	if sv.Format != "" {
		attr.Format = sv.Format
	}
	if sv.Measurand != "" {
		attr.Measurand = sv.Measurand
	}
	if sv.Location != "" {
		attr.Location = sv.Location
	}
	if sv.Unit != "" {
		attr.Unit = sv.Unit
	}
	attr.Phase = sv.Phase

	if attr.Unit == protocol.UnitKWh {
		value *= 1000
		attr.Unit = protocol.UnitWh
	}

	return Sample{
		Timestamp:     ts,
		ConnectorID:   req.ConnectorID,
		TransactionID: req.TransactionID,
		Value:         value,
		Attribute:     attr,
	}, true
}

// IsConsumptionSample reports whether the sample carries the energy import
// register in a periodic or clock context.
func IsConsumptionSample(s Sample) bool {
	if s.Attribute.Measurand != protocol.MeasurandEnergyActiveImportRegister {
		return false
	}
	return s.Attribute.Context == protocol.ContextSamplePeriodic ||
		s.Attribute.Context == protocol.ContextSampleClock
}

// IsStateOfChargeSample reports whether the sample carries a state of charge
// reading in a context the engine accounts for.
func IsStateOfChargeSample(s Sample) bool {
	if s.Attribute.Measurand != protocol.MeasurandStateOfCharge {
		return false
	}
	switch s.Attribute.Context {
	case protocol.ContextSamplePeriodic, protocol.ContextTransactionBegin, protocol.ContextTransactionEnd:
		return true
	}
	return false
}

// FilterClockSamples drops Sample.Clock readings unless the station vendor is
// known to rely on them for its periodic snapshots.
func FilterClockSamples(samples []Sample, vendor string) []Sample {
	if clockContextVendors[vendor] {
		return samples
	}
	out := samples[:0:0]
	for _, s := range samples {
		if s.Attribute.Context == protocol.ContextSampleClock {
			continue
		}
		out = append(out, s)
	}
	return out
}
