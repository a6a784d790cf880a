package meter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/sap-labs-france/ev-server-sub011/internal/ocpp/protocol"
)

func TestNormalizeModernShape(t *testing.T) {
	ts := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	req := protocol.MeterValuesRequest{
		ConnectorID:   1,
		TransactionID: 42,
		MeterValue: []protocol.MeterValue{{
			Timestamp: ts,
			SampledValue: []protocol.SampledValue{
				{Value: "1500"},
				{Value: "55", Measurand: protocol.MeasurandStateOfCharge, Unit: protocol.UnitPercent},
			},
		}},
	}

	samples := Normalize(req, protocol.Version16)
	if len(samples) != 2 {
		t.Fatalf("expected 2 samples, got %d", len(samples))
	}

	energy := samples[0]
	if energy.Value != 1500 {
		t.Fatalf("expected 1500, got %f", energy.Value)
	}
	if energy.ConnectorID != 1 || energy.TransactionID != 42 {
		t.Fatalf("request-level fields must carry over: %+v", energy)
	}
	if energy.Attribute.Measurand != protocol.MeasurandEnergyActiveImportRegister {
		t.Fatalf("missing measurand must default to energy, got %q", energy.Attribute.Measurand)
	}
	if energy.Attribute.Context != protocol.ContextSamplePeriodic {
		t.Fatalf("missing context must default to periodic, got %q", energy.Attribute.Context)
	}
	if !IsConsumptionSample(energy) {
		t.Fatal("defaulted energy sample should count as consumption")
	}

	soc := samples[1]
	if !IsStateOfChargeSample(soc) {
		t.Fatal("expected a state of charge sample")
	}
	if IsConsumptionSample(soc) {
		t.Fatal("state of charge is not consumption")
	}
}

func TestNormalizeConvertsKilowattHours(t *testing.T) {
	req := protocol.MeterValuesRequest{
		ConnectorID: 1,
		MeterValue: []protocol.MeterValue{{
			Timestamp:    time.Now().UTC(),
			SampledValue: []protocol.SampledValue{{Value: "1.5", Unit: protocol.UnitKWh}},
		}},
	}
	samples := Normalize(req, protocol.Version16)
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample, got %d", len(samples))
	}
	if samples[0].Value != 1500 {
		t.Fatalf("expected 1500 Wh, got %f", samples[0].Value)
	}
	if samples[0].Attribute.Unit != protocol.UnitWh {
		t.Fatalf("unit should normalize to Wh, got %q", samples[0].Attribute.Unit)
	}
}

func TestNormalizeSkipsUnparsableValues(t *testing.T) {
	req := protocol.MeterValuesRequest{
		MeterValue: []protocol.MeterValue{{
			Timestamp: time.Now().UTC(),
			SampledValue: []protocol.SampledValue{
				{Value: "not-a-number"},
				{Value: " 250 "},
			},
		}},
	}
	samples := Normalize(req, protocol.Version16)
	if len(samples) != 1 {
		t.Fatalf("expected the bad value dropped, got %d samples", len(samples))
	}
	if samples[0].Value != 250 {
		t.Fatalf("expected 250, got %f", samples[0].Value)
	}
}

func TestNormalizeLegacyShapes(t *testing.T) {
	// OCPP 1.5 payload: values key, bare scalar plus attributed object.
	raw := []byte(`{
		"connectorId": 2,
		"transactionId": 7,
		"values": [
			{"timestamp": "2025-03-10T08:00:00Z", "value": 100},
			{"timestamp": "2025-03-10T08:01:00Z", "value": {"$attributes": {"unit": "kWh"}, "$value": "0.2"}},
			{"timestamp": "2025-03-10T08:02:00Z", "value": ["300", {"$attributes": {"measurand": "SoC"}, "$value": "80"}]}
		]
	}`)

	var req protocol.MeterValuesRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		t.Fatalf("decode: %v", err)
	}

	samples := Normalize(req, protocol.Version15)
	if len(samples) != 4 {
		t.Fatalf("expected 4 samples, got %d", len(samples))
	}
	if samples[0].Value != 100 {
		t.Fatalf("bare scalar: expected 100, got %f", samples[0].Value)
	}
	if samples[1].Value != 200 {
		t.Fatalf("kWh conversion: expected 200, got %f", samples[1].Value)
	}
	if samples[2].Value != 300 {
		t.Fatalf("array scalar: expected 300, got %f", samples[2].Value)
	}
	if !IsStateOfChargeSample(samples[3]) || samples[3].Value != 80 {
		t.Fatalf("attributed array entry: %+v", samples[3])
	}
	if samples[0].ConnectorID != 2 || samples[0].TransactionID != 7 {
		t.Fatalf("request-level fields must carry over: %+v", samples[0])
	}
}

func TestNormalizeFallsBackToOtherVersionKey(t *testing.T) {
	ts := time.Now().UTC()
	req := protocol.MeterValuesRequest{
		MeterValue: []protocol.MeterValue{{
			Timestamp:    ts,
			SampledValue: []protocol.SampledValue{{Value: "10"}},
		}},
	}
	// A station negotiated as 1.5 but sending the 1.6 key still normalizes.
	samples := Normalize(req, protocol.Version15)
	if len(samples) != 1 || samples[0].Value != 10 {
		t.Fatalf("expected fallback to the 1.6 key, got %+v", samples)
	}
}

func TestFilterClockSamples(t *testing.T) {
	clock := Sample{Attribute: Attribute{
		Context:   protocol.ContextSampleClock,
		Measurand: protocol.MeasurandEnergyActiveImportRegister,
	}}
	periodic := Sample{Attribute: Attribute{
		Context:   protocol.ContextSamplePeriodic,
		Measurand: protocol.MeasurandEnergyActiveImportRegister,
	}}

	filtered := FilterClockSamples([]Sample{clock, periodic}, "Schneider")
	if len(filtered) != 1 || filtered[0].Attribute.Context != protocol.ContextSamplePeriodic {
		t.Fatalf("clock samples should be dropped, got %+v", filtered)
	}

	kept := FilterClockSamples([]Sample{clock, periodic}, "ABB")
	if len(kept) != 2 {
		t.Fatalf("clock-reliant vendor keeps all samples, got %d", len(kept))
	}
}
