package arcgis

import "time"

// featureSet is the body of a FeatureServer query response.
type featureSet[A any, G any] struct {
	Features              []feature[A, G] `json:"features"`
	ExceededTransferLimit bool            `json:"exceededTransferLimit"`
	Error                 *apiError       `json:"error"`
}

type feature[A any, G any] struct {
	Attributes A  `json:"attributes"`
	Geometry   *G `json:"geometry"`
}

// apiError is returned with HTTP 200 when a query is rejected.
type apiError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

type pointGeometry struct {
	X *float64 `json:"x"`
	Y *float64 `json:"y"`
}

type polygonGeometry struct {
	Rings [][][]float64 `json:"rings"`
}

type noGeometry struct{}

type locationAttributes struct {
	IrwinID               *string  `json:"IrwinID"`
	GlobalID              *string  `json:"GlobalID"`
	IncidentName          *string  `json:"IncidentName"`
	FireDiscoveryDateTime *float64 `json:"FireDiscoveryDateTime"`
	ModifiedOnDateTime    *float64 `json:"ModifiedOnDateTime_dt"`
	IncidentTypeCategory  *string  `json:"IncidentTypeCategory"`
	DailyAcres            *float64 `json:"DailyAcres"`
	PercentContained      *float64 `json:"PercentContained"`
	ContainmentDateTime   *float64 `json:"ContainmentDateTime"`
}

type historyAttributes struct {
	GlobalID            *string  `json:"GlobalID"`
	ContainmentDateTime *float64 `json:"ContainmentDateTime"`
	ControlDateTime     *float64 `json:"ControlDateTime"`
	FireOutDateTime     *float64 `json:"FireOutDateTime"`
	ModifiedOnDateTime  *float64 `json:"ModifiedOnDateTime_dt"`
	DailyAcres          *float64 `json:"DailyAcres"`
}

const (
	locationFields = "IrwinID,GlobalID,IncidentName,FireDiscoveryDateTime,ModifiedOnDateTime_dt," +
		"IncidentTypeCategory,DailyAcres,PercentContained,ContainmentDateTime"
	historyFields = "GlobalID,ContainmentDateTime,ControlDateTime,FireOutDateTime,ModifiedOnDateTime_dt,DailyAcres"
)

// epochMillis converts an ArcGIS date field to UTC.
func epochMillis(v *float64) *time.Time {
	if v == nil {
		return nil
	}
	t := time.UnixMilli(int64(*v)).UTC()
	return &t
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
