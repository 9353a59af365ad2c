package resource

import (
	"fmt"
	"slices"
	"strings"
)

// Endpoint names a business collection of the API.
type Endpoint string

const (
	Clientes      Endpoint = "clientes"
	Produtos      Endpoint = "produtos"
	Categorias    Endpoint = "categorias"
	Estoques      Endpoint = "estoques"
	Movimentacoes Endpoint = "movimentacoes"
	Pedidos       Endpoint = "pedidos"
	Fornecedores  Endpoint = "fornecedores"
	Usuarios      Endpoint = "usuarios"
	Departamentos Endpoint = "departamentos"
	Logs          Endpoint = "logs"
	ContasPagar   Endpoint = "contas-pagar"
	ContasReceber Endpoint = "contas-receber"
)

// MePath is the profile of the authenticated user.
const MePath = "/usuarios/me/"

// Catalog lists every known collection in display order.
var Catalog = []Endpoint{
	Clientes,
	Produtos,
	Categorias,
	Estoques,
	Movimentacoes,
	Pedidos,
	Fornecedores,
	Usuarios,
	Departamentos,
	Logs,
	ContasPagar,
	ContasReceber,
}

// Lookup resolves a collection by name, ignoring case and surrounding slashes.
func Lookup(name string) (Endpoint, error) {
	ep := Endpoint(strings.ToLower(strings.Trim(name, "/")))
	if !slices.Contains(Catalog, ep) {
		return "", fmt.Errorf("unknown resource %q", name)
	}
	return ep, nil
}

// Path returns the collection path relative to the API base URL.
func (e Endpoint) Path() string {
	return "/" + string(e) + "/"
}

// ItemPath returns the path of a single object of the collection.
func (e Endpoint) ItemPath(id string) string {
	return e.Path() + id + "/"
}

// ActiveField is the boolean filter that selects active objects, or "" when
// the collection has none.
func (e Endpoint) ActiveField() string {
	switch e {
	case Categorias:
		return "ativa"
	case Clientes, Produtos, Fornecedores, Departamentos:
		return "ativo"
	case Usuarios:
		return "is_active"
	default:
		return ""
	}
}

func (e Endpoint) String() string {
	return string(e)
}
