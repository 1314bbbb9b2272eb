// Package policy loads route authorization requirements from a YAML
// file and keeps them current while the process runs.
//
// A policy file maps route names to declarative requirements:
//
//	routes:
//	  list-clients:
//	    permission: CLIENTS_VIEW_TEAM
//	    require_tenant: true
//	  close-books:
//	    min_role: manager
//	    conditions:
//	      - field: region
//	        operator: in
//	        value: [eu, us]
//
// Edits to the file are picked up without a restart. A file that
// fails to parse leaves the previously loaded policy in place.
package policy
