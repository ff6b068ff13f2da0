package enums

// VehicleType describes how a volunteer travels.
type VehicleType string

const (
	VehicleTypeBicycle    VehicleType = "bicycle"
	VehicleTypeMotorcycle VehicleType = "motorcycle"
	VehicleTypeCar        VehicleType = "car"
	VehicleTypeAuto       VehicleType = "auto"
)

var validVehicleTypes = []VehicleType{
	VehicleTypeBicycle,
	VehicleTypeMotorcycle,
	VehicleTypeCar,
	VehicleTypeAuto,
}

// String implements fmt.Stringer.
func (v VehicleType) String() string {
	return string(v)
}

// IsValid reports whether the value is a known VehicleType.
func (v VehicleType) IsValid() bool {
	return member(validVehicleTypes, v)
}

// ParseVehicleType converts raw input into a VehicleType.
func ParseVehicleType(value string) (VehicleType, error) {
	return parse("vehicle type", validVehicleTypes, value)
}
