// Package resource describes the business collections of the API and decodes
// their list responses.
//
// Collections are exposed by the backend as REST routers under the API base
// URL ("/clientes/", "/pedidos/", ...). List endpoints answer either with a
// paginated envelope ({"results": [...], "count": n, "next": ..., "previous": ...})
// or with a bare JSON array; DecodeList accepts both.
package resource
