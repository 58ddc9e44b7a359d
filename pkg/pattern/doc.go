// Package pattern implements the URL mapping rules shared by routing and
// filter selection.
//
// Four rule classes exist:
//
//   - Exact: "/catalog/index" matches only that path.
//   - Path prefix: "/catalog/*" matches "/catalog" and everything below it;
//     "/*" matches every path.
//   - Extension: "*.jsp" matches any path whose final segment ends in ".jsp".
//   - Default: "/" matches whatever nothing else matched.
//
// Routing and filtering use the rules differently. Mapper.Resolve picks the
// single most specific handler (exact, longest prefix, extension, default).
// Match answers the filter question and is applied to every filter mapping,
// so all matching filters run; the default pattern never matches a filter.
//
//	m := pattern.NewMapper()
//	_ = m.Add("/app/*", "app")
//	_ = m.Add("*.jsp", "jsp")
//	route, _ := m.Resolve("/app/b.jsp") // route.Name == "app", route.PathInfo == "/b.jsp"
//
//	pattern.Match("/*", "/app/b.jsp")    // true
//	pattern.Match("*.jsp", "/app/b.jsp") // true
package pattern
