// Package build generates the replacement markup for captured assets.
//
// Each asset first passes the plugin resolver chain, falling back to the
// default resolution, then the builder chain, falling back to the per-kind
// default markup or a configured template override. Default markup is built
// as an HTML node tree and rendered, so attribute values are always escaped.
package build
