package gpu

type ImageFormat int32

var imageFormatMapping = make(map[ImageFormat]string)

func (f ImageFormat) Register(str string) {
	imageFormatMapping[f] = str
}

func (f ImageFormat) String() string {
	return imageFormatMapping[f]
}

const (
	ImageFormatUndefined ImageFormat = iota
	ImageFormatR8Unorm
	ImageFormatRGBA8Unorm
	ImageFormatRGBA8SRGB
	ImageFormatBGRA8Unorm
	ImageFormatBGRA8SRGB
	ImageFormatRGBA16Float
	ImageFormatRGBA32Float
	ImageFormatD32Float
	ImageFormatD24UnormS8
)

// BytesPerPixel is the size of one texel of a color format, or 0 for formats that cannot be
// uploaded from the host
func (f ImageFormat) BytesPerPixel() int {
	switch f {
	case ImageFormatR8Unorm:
		return 1
	case ImageFormatRGBA8Unorm, ImageFormatRGBA8SRGB, ImageFormatBGRA8Unorm, ImageFormatBGRA8SRGB:
		return 4
	case ImageFormatRGBA16Float:
		return 8
	case ImageFormatRGBA32Float:
		return 16
	}

	return 0
}

type Filter int32

var filterMapping = make(map[Filter]string)

func (f Filter) Register(str string) {
	filterMapping[f] = str
}

func (f Filter) String() string {
	return filterMapping[f]
}

const (
	FilterNearest Filter = iota
	FilterLinear
)

type AddressMode int32

var addressModeMapping = make(map[AddressMode]string)

func (m AddressMode) Register(str string) {
	addressModeMapping[m] = str
}

func (m AddressMode) String() string {
	return addressModeMapping[m]
}

const (
	AddressModeRepeat AddressMode = iota
	AddressModeMirroredRepeat
	AddressModeClampToEdge
	AddressModeClampToBorder
)

type LoadOp int32

const (
	LoadOpLoad LoadOp = iota
	LoadOpClear
	LoadOpDontCare
)

type StoreOp int32

const (
	StoreOpStore StoreOp = iota
	StoreOpDontCare
)

func init() {
	ImageFormatUndefined.Register("ImageFormatUndefined")
	ImageFormatR8Unorm.Register("ImageFormatR8Unorm")
	ImageFormatRGBA8Unorm.Register("ImageFormatRGBA8Unorm")
	ImageFormatRGBA8SRGB.Register("ImageFormatRGBA8SRGB")
	ImageFormatBGRA8Unorm.Register("ImageFormatBGRA8Unorm")
	ImageFormatBGRA8SRGB.Register("ImageFormatBGRA8SRGB")
	ImageFormatRGBA16Float.Register("ImageFormatRGBA16Float")
	ImageFormatRGBA32Float.Register("ImageFormatRGBA32Float")
	ImageFormatD32Float.Register("ImageFormatD32Float")
	ImageFormatD24UnormS8.Register("ImageFormatD24UnormS8")

	FilterNearest.Register("FilterNearest")
	FilterLinear.Register("FilterLinear")

	AddressModeRepeat.Register("AddressModeRepeat")
	AddressModeMirroredRepeat.Register("AddressModeMirroredRepeat")
	AddressModeClampToEdge.Register("AddressModeClampToEdge")
	AddressModeClampToBorder.Register("AddressModeClampToBorder")
}
