// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package presenter

import "github.com/vorlif/spreak/localize"

const (
	labelLatitude      localize.MsgID = "Latitude"
	labelLongitude     localize.MsgID = "Longitude"
	labelAccuracy      localize.MsgID = "Accuracy"
	labelAltitude      localize.MsgID = "Altitude"
	labelEllipsoidal   localize.MsgID = "Ellipsoidal altitude"
	labelLastObserved  localize.MsgID = "Last observed"
	labelSource        localize.MsgID = "Source"
	labelName          localize.MsgID = "Name"
	labelCountry       localize.MsgID = "Country"
	labelCountryCode   localize.MsgID = "Country code"
	labelPostalCode    localize.MsgID = "Postal code"
	labelAdminArea     localize.MsgID = "Administrative area"
	labelSubAdminArea  localize.MsgID = "Subadministrative area"
	labelLocality      localize.MsgID = "Locality"
	labelSubLocality   localize.MsgID = "Sublocality"
	labelThoroughfare  localize.MsgID = "Thoroughfare"
	labelSubThorough   localize.MsgID = "Subthoroughfare"
	labelRegion        localize.MsgID = "Region"
	labelInlandWater   localize.MsgID = "Inland water"
	labelOcean         localize.MsgID = "Ocean"
	labelAreasInterest localize.MsgID = "Areas of interest"
	labelUnknown       localize.MsgID = "unknown"
)

// i18nVars maps the keys accepted by the loc template function to their labels.
var i18nVars = map[string]localize.MsgID{
	"latitude":        labelLatitude,
	"longitude":       labelLongitude,
	"accuracy":        labelAccuracy,
	"altitude":        labelAltitude,
	"ellipsoidal":     labelEllipsoidal,
	"lastobserved":    labelLastObserved,
	"source":          labelSource,
	"name":            labelName,
	"country":         labelCountry,
	"countrycode":     labelCountryCode,
	"postalcode":      labelPostalCode,
	"adminarea":       labelAdminArea,
	"subadminarea":    labelSubAdminArea,
	"locality":        labelLocality,
	"sublocality":     labelSubLocality,
	"thoroughfare":    labelThoroughfare,
	"subthoroughfare": labelSubThorough,
	"region":          labelRegion,
	"inlandwater":     labelInlandWater,
	"ocean":           labelOcean,
	"areasofinterest": labelAreasInterest,
	"unknown":         labelUnknown,
}
