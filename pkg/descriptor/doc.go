// Package descriptor configures a dispatcher from a YAML document.
//
// A descriptor names handlers and filters, their factories, init parameters,
// URL mappings, filter mappings and error pages:
//
//	context_path: /shop
//	handlers:
//	  - name: catalog
//	    factory: catalog
//	    load_priority: 1
//	    init_params:
//	      - {name: page_size, value: "50"}
//	    mappings: ["/products/*", "*.json"]
//	filters:
//	  - name: request-id
//	    factory: request-id
//	filter_mappings:
//	  - filter: request-id
//	    url_pattern: /*
//	    dispatchers: [REQUEST, FORWARD]
//	error_pages:
//	  404: /errors/not-found
//
// Factories are looked up in a Catalog the program fills at startup, so a
// descriptor can only instantiate code the binary registered:
//
//	cat := descriptor.NewCatalog().
//		Handler("catalog", newCatalogHandler).
//		Filter("request-id", filterchain.Static(requestid.Filter()))
//
//	doc, err := descriptor.Load("dispatch.yaml")
//	if err != nil {
//		return err
//	}
//	d := dispatcher.New(doc.Options()...)
//	if err := descriptor.Apply(d, doc, cat); err != nil {
//		return err
//	}
//
// Structural problems are reported by Parse with ErrParseDescriptor or
// ErrInvalidDescriptor; factories missing from the catalog by Apply with
// ErrUnknownFactory.
package descriptor
