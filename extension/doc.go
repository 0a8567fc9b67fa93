// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package extension describes the dental extension and mode to the viewer.

# Registration

BuildManifest returns the descriptors the viewer's extension loader consumes:
panel modules, the dental theme customizations, the command names, the
measurement presets and the hanging protocol module.

# Hanging Protocol

DentalHangingProtocol declares a 2x2 grid:

	+-------------------+-------------------+
	| current study     | prior study       |
	+-------------------+-------------------+
	| bitewing (1st)    | bitewing (2nd)    |
	+-------------------+-------------------+

Current and prior slots match by study position; bitewing slots match series
whose description contains "Bitewing". Every slot requires frames. The
descriptor is data only; matching is done by the viewer.

# Mode Lifecycle

	mode := extension.NewMode(logger)
	if err := mode.Enter(extension.Host{Measurements: store, ToolGroups: tools}); err != nil {
		return err
	}
	defer mode.Exit()

	mode.Commands().Run(extension.CommandSelectPreset, map[string]any{"presetId": "canal-angle"})

Enter creates the four dental tool groups and subscribes the enricher. Exit
unsubscribes and clears the active preset and tooth.
*/
package extension
