// Package tools holds the closed catalogue of backend operations the agents
// can offer to the LLM, the per-role subsets, and the registry that checks a
// subset for consistency before an agent starts.
package tools

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/Team-1-Hackathon-Dorahacks-IDN/EventVerse/internal/llm"
)

// ID identifies a tool. The set is closed: every ID below has a backend
// route and a formatter.
type ID string

const (
	CreateEvent              ID = "create_event"
	GetEvents                ID = "get_events"
	GetEventByID             ID = "get_event_by_id"
	CountEvents              ID = "count_events"
	CanisterAddress          ID = "canister_address"
	AddressBalance           ID = "address_balance"
	Payment                  ID = "payment"
	GetCurrentFeePercentiles ID = "get_current_fee_percentiles"
	GetBalance               ID = "get_balance"
	GetUTXOs                 ID = "get_utxos"
	GetP2PKHAddress          ID = "get_p2pkh_address"
	Send                     ID = "send"
)

// All returns every tool in catalogue order.
func All() []ID {
	return []ID{
		CreateEvent,
		GetEvents,
		GetEventByID,
		CountEvents,
		CanisterAddress,
		AddressBalance,
		Payment,
		GetCurrentFeePercentiles,
		GetBalance,
		GetUTXOs,
		GetP2PKHAddress,
		Send,
	}
}

// Valid reports whether id belongs to the catalogue.
func (id ID) Valid() bool {
	_, ok := definitions[id]
	return ok
}

func (id ID) String() string { return string(id) }

// Definition returns the schema advertised to the LLM for id.
func Definition(id ID) (llm.ToolDefinition, bool) {
	def, ok := definitions[id]
	return def, ok
}

// ForRole returns the tool subset exposed by an agent role.
func ForRole(role string) ([]ID, error) {
	switch role {
	case "full":
		return All(), nil
	case "events":
		return []ID{CreateEvent, GetEvents, GetEventByID, CountEvents, CanisterAddress}, nil
	case "payment":
		return []ID{Payment}, nil
	case "coordinator":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}
}

// NoArgs is the argument set of tools that take no input.
type NoArgs struct{}

// CreateEventArgs are the arguments of create_event.
type CreateEventArgs struct {
	Name     string `json:"name" jsonschema:"description=Name of the event"`
	Date     string `json:"date" jsonschema:"description=Date of the event"`
	Location string `json:"location" jsonschema:"description=Location of the event"`
	Price    string `json:"price" jsonschema:"description=Price of the event but dont add any currency"`
	Capacity int    `json:"capacity,omitempty" jsonschema:"description=Maximum number of attendees"`
	MinAge   int    `json:"min_age,omitempty" jsonschema:"description=Minimum attendee age"`
}

// ListEventsArgs are the paging arguments of get_events.
type ListEventsArgs struct {
	Limit  int `json:"limit,omitempty" jsonschema:"description=Limit the number of events returned"`
	Offset int `json:"offset,omitempty" jsonschema:"description=Skip this many events from the start"`
}

// EventIDArgs select a single event.
type EventIDArgs struct {
	EventID string `json:"eventId" jsonschema:"description=ID of the event"`
}

// EVMAddressArgs carry the address for address_balance.
type EVMAddressArgs struct {
	Address string `json:"address" jsonschema:"description=The 0x-prefixed EVM address to check."`
}

// BitcoinAddressArgs carry the address for get_balance and get_utxos.
type BitcoinAddressArgs struct {
	Address string `json:"address" jsonschema:"description=The Bitcoin address to query."`
}

// SendArgs are the arguments of send.
type SendArgs struct {
	DestinationAddress string `json:"destinationAddress" jsonschema:"description=The destination Bitcoin address."`
	AmountInSatoshi    int64  `json:"amountInSatoshi" jsonschema:"description=Amount to send in satoshis."`
}

// schemaOf reflects the argument struct T into the object schema sent to the
// LLM. Fields without omitempty are required.
func schemaOf[T any]() map[string]any {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var args T
	reflected := reflector.Reflect(args)

	properties := map[string]any{}
	if raw, err := json.Marshal(reflected.Properties); err == nil {
		_ = json.Unmarshal(raw, &properties)
	}
	if properties == nil {
		properties = map[string]any{}
	}
	required := append([]string{}, reflected.Required...)
	return map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
}

func define[T any](id ID, description string) llm.ToolDefinition {
	return llm.ToolDefinition{
		Name:        string(id),
		Description: description,
		Parameters:  schemaOf[T](),
	}
}

var definitions = map[ID]llm.ToolDefinition{
	CreateEvent:              define[CreateEventArgs](CreateEvent, "Create a new event in the ICP canister"),
	GetEvents:                define[ListEventsArgs](GetEvents, "Get the list of events from the ICP canister please always use ETH for event's price"),
	GetEventByID:             define[EventIDArgs](GetEventByID, "Get details of a specific event by its ID"),
	CountEvents:              define[NoArgs](CountEvents, "Returns the total number of events stored in the canister"),
	CanisterAddress:          define[NoArgs](CanisterAddress, "Returns the address of this canister"),
	AddressBalance:           define[EVMAddressArgs](AddressBalance, "Returns the ETH balance of an EVM address on Base Sepolia"),
	Payment:                  define[EventIDArgs](Payment, "Returns the payment link for a given event"),
	GetCurrentFeePercentiles: define[NoArgs](GetCurrentFeePercentiles, "Gets the 100 fee percentiles measured in millisatoshi/byte."),
	GetBalance:               define[BitcoinAddressArgs](GetBalance, "Returns the balance of a given Bitcoin address."),
	GetUTXOs:                 define[BitcoinAddressArgs](GetUTXOs, "Returns the UTXOs of a given Bitcoin address."),
	GetP2PKHAddress:          define[NoArgs](GetP2PKHAddress, "Returns the P2PKH address of this canister at a specific derivation path."),
	Send:                     define[SendArgs](Send, "Sends satoshis from this canister to a specified address."),
}
