package schema

import "math"

// Sentinel is the fill value used by GDP files for missing numbers.
const Sentinel = -1e34

// EpochUnits is the units attribute of encoded time fields.
const EpochUnits = "seconds since 1970-01-01 00:00:00"

// Names of the fields derived values depend on.
const (
	IDField         = "ID"
	TimeField       = "time"
	DrogueLostField = "drogue_lost_date"
)

// ObsLengthVariable is the per-observation variable whose length
// defines a record's observation count.
const ObsLengthVariable = "time"

const sstFlagMeanings = "no-estimate, no-uncertainty-estimate, estimate-not-in-range-uncertainty-not-in-range, " +
	"estimate-not-in-range-uncertainty-in-range estimate-in-range-uncertainty-not-in-range, " +
	"estimate-in-range-uncertainty-in-range"

func trajVar(name, source string, kind Kind, longName, units string) Field {
	return Field{Name: name, Source: source, Origin: Variable, Dim: Trajectory, Kind: kind, Decode: Copy, LongName: longName, Units: units}
}

func trajDate(name, longName string) Field {
	return Field{Name: name, Source: name, Origin: Variable, Dim: Trajectory, Kind: Time, Decode: Epoch, LongName: longName}
}

func attrText(name, source string, width int, longName string) Field {
	return Field{Name: name, Source: source, Origin: Attribute, Dim: Trajectory, Kind: String, Decode: Truncate, Width: width, LongName: longName, Units: "-"}
}

func attrNumber(name string, kind Kind, suffix int, fallback float64, longName, units string) Field {
	return Field{Name: name, Source: name, Origin: Attribute, Dim: Trajectory, Kind: kind, Decode: Numeric,
		SuffixWidth: suffix, Fallback: fallback, LongName: longName, Units: units}
}

func obsFloat(name, longName, units, comments string) Field {
	return Field{Name: name, Source: name, Origin: Variable, Dim: Observation, Kind: Float32, Decode: FillValue,
		LongName: longName, Units: units, Comments: comments}
}

func obsFlag(name, longName string) Field {
	return Field{Name: name, Source: name, Origin: Variable, Dim: Observation, Kind: Int8, Decode: Copy,
		LongName: longName, Units: "-", FlagValues: "0, 1, 2, 3, 4, 5", FlagMeanings: sstFlagMeanings}
}

var gdpFields = []Field{
	// per trajectory
	trajVar("ID", "ID", Int64, "Global Drifter Program Buoy ID", "-"),
	{Name: "rowsize", Dim: Trajectory, Kind: Int64, Decode: RowSize, LongName: "Number of observations per trajectory", Units: "-"},
	{Name: "location_type", Source: "location_type", Origin: Attribute, Dim: Trajectory, Kind: Bool, Decode: LocationType,
		LongName: "Satellite-based location system", Units: "-", Comments: "0 (Argos), 1 (GPS)"},
	trajVar("WMO", "WMO", Int32, "World Meteorological Organization buoy identification number", "-"),
	trajVar("expno", "expno", Int32, "Experiment number", "-"),
	trajDate("deploy_date", "Deployment date and time"),
	trajVar("deploy_lon", "deploy_lon", Float32, "Deployment longitude", "degrees_east"),
	trajVar("deploy_lat", "deploy_lat", Float32, "Deployment latitude", "degrees_north"),
	trajDate("end_date", "End date and time"),
	trajVar("end_lat", "end_lat", Float32, "End latitude", "degrees_north"),
	trajVar("end_lon", "end_lon", Float32, "End longitude", "degrees_east"),
	trajDate("drogue_lost_date", "Date and time of drogue loss"),
	{Name: "type_death", Source: "typedeath", Origin: Variable, Dim: Trajectory, Kind: Int8, Decode: Copy,
		LongName: "Type of death", Units: "-",
		Comments: "0 (buoy still alive), 1 (buoy ran aground), 2 (picked up by vessel), 3 (stop transmitting), " +
			"4 (sporadic transmissions), 5 (bad batteries), 6 (inactive status)"},
	{Name: "type_buoy", Source: "typebuoy", Origin: Variable, Dim: Trajectory, Kind: String, Decode: Truncate, Width: 15,
		LongName: "Buoy type (see https://www.aoml.noaa.gov/phod/dac/dirall.html)", Units: "-"},

	// per trajectory, from global attributes
	attrText("DeploymentShip", "DeployingShip", 15, "Name of deployment ship"),
	attrText("DeploymentStatus", "DeploymentStatus", 15, "Deployment status"),
	attrText("BuoyTypeManufacturer", "BuoyTypeManufacturer", 15, "Buoy type manufacturer"),
	attrText("BuoyTypeSensorArray", "BuoyTypeSensorArray", 15, "Buoy type sensor array"),
	attrNumber("CurrentProgram", Int32, 0, -1, "Current Program", "-"),
	attrText("PurchaserFunding", "PurchaserFunding", 15, "Purchaser funding"),
	attrText("SensorUpgrade", "SensorUpgrade", 15, "Sensor upgrade"),
	attrText("Transmissions", "Transmissions", 15, "Transmissions"),
	attrText("DeployingCountry", "DeployingCountry", 15, "Deploying country"),
	attrText("DeploymentComments", "DeploymentComments", 15, "Deployment comments"),
	attrNumber("ManufactureYear", Int16, 0, -1, "Manufacture year", "-"),
	attrNumber("ManufactureMonth", Int16, 0, -1, "Manufacture month", "-"),
	attrText("ManufactureSensorType", "ManufactureSensorType", 5, "Manufacture Sensor Type"),
	attrNumber("ManufactureVoltage", Int16, 6, -1, "Manufacture voltage", "-"), // "56 V"
	attrNumber("FloatDiameter", Float32, 3, math.NaN(), "Diameter of surface floater", "cm"),
	// NaN and unparseable text decode to false; the GDP preprocessing
	// cast them to true.
	attrNumber("SubsfcFloatPresence", Bool, 0, 0, "Subsurface Float Presence", "-"),
	attrText("DrogueType", "DrogueType", 7, "Drogue Type"),
	attrNumber("DrogueLength", Float32, 2, math.NaN(), "Length of drogue.", "m"),
	attrNumber("DrogueBallast", Float32, 3, math.NaN(), "Weight of the drogue's ballast.", "kg"),
	attrNumber("DragAreaAboveDrogue", Float32, 4, math.NaN(), "Drag area above drogue.", "m^2"),
	attrNumber("DragAreaOfDrogue", Float32, 4, math.NaN(), "Drag area drogue.", "m^2"),
	attrNumber("DragAreaRatio", Float32, 0, math.NaN(), "Drag area ratio", "m"),
	attrNumber("DrogueCenterDepth", Float32, 2, math.NaN(), "Average depth of the drogue.", "m"),
	attrText("DrogueDetectSensor", "DrogueDetectSensor", 15, "Drogue detection sensor"),

	// per observation
	{Name: "ids", Dim: Observation, Kind: Int64, Decode: RepeatID,
		LongName: "Trajectory index of vars['traj'] for all observations", Units: "-"},
	obsFloat("longitude", "Longitude", "degrees_east", ""),
	obsFloat("latitude", "Latitude", "degrees_north", ""),
	{Name: "time", Source: "time", Origin: Variable, Dim: Observation, Kind: Time, Decode: Epoch, LongName: "Time"},
	obsFloat("ve", "Eastward velocity", "m/s", ""),
	obsFloat("vn", "Northward velocity", "m/s", ""),
	obsFloat("gap", "Time interval between previous and next location", "s", ""),
	obsFloat("err_lat", "95% confidence interval in latitude", "degrees_north", ""),
	obsFloat("err_lon", "95% confidence interval in longitude", "degrees_east", ""),
	obsFloat("err_ve", "95% confidence interval in eastward velocity", "m/s", ""),
	obsFloat("err_vn", "95% confidence interval in northward velocity", "m/s", ""),
	{Name: "drogue_status", Dim: Observation, Kind: Bool, Decode: DroguePresence,
		LongName: "Status indicating the presence of the drogue", Units: "-", FlagValues: "1,0", FlagMeanings: "drogued, undrogued"},
	obsFloat("sst", "Fitted sea water temperature", "Kelvin",
		"Estimated near-surface sea water temperature from drifting buoy measurements. It is the sum of the fitted "+
			"near-surface non-diurnal sea water temperature and fitted diurnal sea water temperature anomaly. "+
			"Discrepancies may occur because of rounding."),
	obsFloat("sst1", "Fitted non-diurnal sea water temperature", "Kelvin",
		"Estimated near-surface non-diurnal sea water temperature from drifting buoy measurements"),
	obsFloat("sst2", "Fitted diurnal sea water temperature anomaly", "Kelvin",
		"Estimated near-surface diurnal sea water temperature anomaly from drifting buoy measurements"),
	obsFloat("err_sst", "Standard uncertainty of fitted sea water temperature", "Kelvin",
		"Estimated one standard error of near-surface sea water temperature estimate from drifting buoy measurements"),
	obsFloat("err_sst1", "Standard uncertainty of fitted non-diurnal sea water temperature", "Kelvin",
		"Estimated one standard error of near-surface non-diurnal sea water temperature estimate from drifting buoy measurements"),
	obsFloat("err_sst2", "Standard uncertainty of fitted diurnal sea water temperature anomaly", "Kelvin",
		"Estimated one standard error of near-surface diurnal sea water temperature anomaly estimate from drifting buoy measurements"),
	obsFlag("flg_sst", "Fitted sea water temperature quality flag"),
	obsFlag("flg_sst1", "Fitted non-diurnal sea water temperature quality flag"),
	obsFlag("flg_sst2", "Fitted diurnal sea water temperature anomaly quality flag"),
}

var gdp = MustNew(gdpFields)

// GDP returns the field table of the hourly Global Drifter Program
// collection.
func GDP() *Schema {
	return gdp
}
