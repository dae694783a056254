// Package noaa implements queries to the NOAA Tides and Currents API. Data is
// requested per station as a time series (see Query); a successful query
// returns readings with a naive UTC timestamp and a value, which is null when
// the station reported nothing. Stations near a coordinate are found from the
// NOAA station catalog.
package noaa
