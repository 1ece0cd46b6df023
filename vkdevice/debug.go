package vkdevice

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
	"github.com/vkngwrapper/gpudevice/internal/vulkan"
	"golang.org/x/exp/slog"
)

var debugSeverities = []ext_debug_utils.DebugUtilsMessageSeverityFlags{
	ext_debug_utils.SeverityVerbose,
	ext_debug_utils.SeverityInfo,
	ext_debug_utils.SeverityWarning,
	ext_debug_utils.SeverityError,
}

// severityMask includes every severity at least as loud as minSeverity
func severityMask(minSeverity ext_debug_utils.DebugUtilsMessageSeverityFlags) ext_debug_utils.DebugUtilsMessageSeverityFlags {
	var mask ext_debug_utils.DebugUtilsMessageSeverityFlags
	for _, severity := range debugSeverities {
		if severity >= minSeverity {
			mask |= severity
		}
	}
	return mask
}

func severityLevel(severity ext_debug_utils.DebugUtilsMessageSeverityFlags) slog.Level {
	switch {
	case severity&ext_debug_utils.SeverityError != 0:
		return slog.LevelError
	case severity&ext_debug_utils.SeverityWarning != 0:
		return slog.LevelWarn
	case severity&ext_debug_utils.SeverityInfo != 0:
		return slog.LevelInfo
	}
	return slog.LevelDebug
}

func (d *Device) createDebugMessenger() error {
	var err error
	d.debugMessenger, err = d.instance.CreateDebugMessenger(vulkan.DebugMessengerCreateInfo{
		Severity: severityMask(d.options.MinSeverity),
		Type:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		Callback: d.logDebugMessage,
	})
	if err != nil {
		return errors.Wrap(err, "could not create debug messenger")
	}

	return nil
}

// logDebugMessage writes a driver debug message as one record, followed by one record for each
// object and command buffer label it refers to
func (d *Device) logDebugMessage(message vulkan.DebugMessage) {
	ctx := context.Background()
	level := severityLevel(message.Severity)

	d.logger.LogAttrs(ctx, level, message.Message,
		slog.Any("type", message.Type),
		slog.String("id", message.MessageIDName),
		slog.Int("number", message.MessageIDNumber),
	)

	for index, object := range message.Objects {
		d.logger.LogAttrs(ctx, level, "    object",
			slog.Int("index", index),
			slog.String("type", object.Type),
			slog.String("handle", object.Handle),
			slog.String("name", object.Name),
		)
	}

	for index, label := range message.Labels {
		d.logger.LogAttrs(ctx, level, "    label",
			slog.Int("index", index),
			slog.String("name", label.Name),
			slog.Any("color", label.Color),
		)
	}
}
