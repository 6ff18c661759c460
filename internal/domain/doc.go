// Package domain models mtinv moment tensor reports and their mapping onto
// QuakeML 1.2 events.
//
// # Data Source
//
// Reports are the plain-text solution summaries published by the Nevada
// Seismological Laboratory's mtinv moment tensor inversion. They are usually
// served as an HTML page with the report inside a <pre> block; the tags are
// dropped and the text between them is parsed. The upstream publisher places
// each report, unmodified, on the Kafka source topic.
//
// # Report Conventions
//
// Identifiers are "Label: value" lines; scalars are "Label = value" lines
// with an optional unit suffix:
//
//	Event ID: 719663
//	Depth = 6.0 (km)
//	Mo = 7.73x10^22 (dyne x cm)
//
// Event line:
//
//	"YYYY/MM/DD (JJJ) hh:mm:ss.ff lat lon [orid]" in UTC, e.g.
//	"2016/12/28 (363) 08:18:01.30 38.3777 -118.3602 1468305".
//	The day-of-year in parentheses must agree with the date.
//
// Moment tensor:
//
//	Spherical elements (Mrr Mtt Mff Mrt Mrf Mtf) share the block's EXP and
//	are in dyne·cm. Mpp, Mrp and Mtp are accepted as aliases. The Cartesian
//	block is optional; only its upper triangle is kept, and it falls back to
//	the spherical EXP when it has none. Output values are converted to N·m
//	(×1e-7). Depth is converted from km to m.
//
// Station table:
//
//	Columns are matched by header name (Net, Sta, Def, Distance, Azimuth,
//	BackAzimuth, LoF, HiF, Model), so column order may vary. A station whose
//	Def flag is "N" is kept as non-defining and mapped with used=false.
//	The table ends at the first line without network and station codes in
//	their columns; a station row with the wrong number of columns is an
//	error. The defining rows must add up to the header's Used= count.
//
// Optional values:
//
//	A missing optional field is left absent from the output. A malformed one
//	is an error unless the parser runs in lenient mode, in which case it is
//	recorded in [Report.Warnings] and treated as missing. Required fields and
//	grouped blocks are always fatal.
//
// # ID Generation
//
// Resource identifiers are deterministic: "mtinv/<evid>-<orid>" with the unix
// time of the report's Date line appended when present. Converting the same
// report twice yields the same document, and a re-issued solution for the
// same origin yields new identifiers. See [Mapper.ResourceID].
package domain
