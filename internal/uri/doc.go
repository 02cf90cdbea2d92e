// Package uri implements the hierarchical addresses used throughout mathgrid.
//
// Every archive, module, symbol, document and document element is named by
// a URI built by composition from a base:
//
//	http://example.org                                  BaseURI
//	http://example.org?a=math/geometry                  ArchiveURI
//	http://example.org?a=math/geometry&m=Triangle&l=en  ModuleURI
//	...&m=Triangle&l=en&c=area                          SymbolURI
//	http://example.org?a=math/geometry&p=plane&d=Triangle&l=en
//	                                                    DocumentURI
//	...&d=Triangle&l=en&e=intro                         DocumentElementURI
//
// All names are backed by the intern package, so URIs are small comparable
// values: == compares them and they can key maps directly. Formatting is the
// exact inverse of parsing; for every constructible URI u,
// Parse(u.String()) == u.
package uri
