package vulkan

import (
	"fmt"
	"image/color"

	"github.com/vkngwrapper/extensions/v2/ext_debug_utils"
)

type DebugObject struct {
	Type   string
	Handle string
	Name   string
}

type DebugLabel struct {
	Name  string
	Color color.Color
}

// DebugMessage is a single message delivered to a debug messenger, flattened out of the driver's
// callback data
type DebugMessage struct {
	Severity        ext_debug_utils.DebugUtilsMessageSeverityFlags
	Type            ext_debug_utils.DebugUtilsMessageTypeFlags
	MessageIDName   string
	MessageIDNumber int
	Message         string
	Objects         []DebugObject
	Labels          []DebugLabel
}

type DebugMessengerCreateInfo struct {
	Severity ext_debug_utils.DebugUtilsMessageSeverityFlags
	Type     ext_debug_utils.DebugUtilsMessageTypeFlags
	Callback func(message DebugMessage)
}

func convertDebugMessage(
	msgType ext_debug_utils.DebugUtilsMessageTypeFlags,
	severity ext_debug_utils.DebugUtilsMessageSeverityFlags,
	data *ext_debug_utils.DebugUtilsMessengerCallbackData,
) DebugMessage {
	message := DebugMessage{
		Severity: severity,
		Type:     msgType,
	}

	if data == nil {
		return message
	}

	message.MessageIDName = data.MessageIDName
	message.MessageIDNumber = data.MessageIDNumber
	message.Message = data.Message

	for _, object := range data.Objects {
		message.Objects = append(message.Objects, DebugObject{
			Type:   fmt.Sprint(object.ObjectType),
			Handle: fmt.Sprintf("%#x", object.ObjectHandle),
			Name:   object.ObjectName,
		})
	}

	for _, label := range data.CmdBufLabels {
		message.Labels = append(message.Labels, DebugLabel{
			Name:  label.LabelName,
			Color: label.Color,
		})
	}

	return message
}
