// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package dental implements the measurement side of the dental viewer mode.

# Presets

Four measurement presets map a dental measurement onto a toolset tool:

	periapical-length  Length  mm
	canal-angle        Angle   °
	crown-width        Length  mm
	root-length        Length  mm

# Sessions

A Session holds the active preset id and the active tooth for one viewer.
Unknown preset ids are accepted and stored; they just never stamp anything.

# Enrichment

The Enricher subscribes to a MeasurementStore and, for every added or updated
measurement, stamps the dental metadata keys and rewrites the label:

	enricher := dental.NewEnricher(store, tools, dental.NewSession(), logger)
	enricher.Start()
	enricher.SelectPreset(dental.PresetPeriapicalLength)
	enricher.SetActiveTooth(&dental.ToothSelection{System: dental.SystemFDI, Value: "11"})
	// a new Length measurement is now labeled "PA length (FDI 11)"

Store updates re-notify listeners, so the enricher only writes when the
metadata or label actually changed. EnrichAdded and EnrichUpdated are the
pure functions underneath and can be called without a store.

# Label Parsing

EnhanceExisting tags measurements created before the enricher was running by
matching their labels against preset labels and a "(FDI 11)" style tooth
suffix. It is a heuristic and never touches already tagged measurements.

# Export

Export produces the panel export rows:

	[{"uid":"...","label":"PA length","value":15.5,"unit":"mm",
	  "tooth":{"system":"FDI","value":"11"},"source":"periapical-length"}]
*/
package dental
