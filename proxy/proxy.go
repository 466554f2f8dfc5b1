// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proxy

import (
	"errors"
	"fmt"

	"github.com/bureau-foundation/proxysync/message"
)

// ErrUnknownProperty is returned when setting a property the
// definition does not declare.
var ErrUnknownProperty = errors.New("unknown property")

// ErrKindMismatch is returned when a property value has a different
// kind than its definition.
var ErrKindMismatch = errors.New("property kind mismatch")

// Proxy is a handle for one shared object.
type Proxy struct {
	session    Session
	definition *Definition

	id           message.ID
	location     message.Location
	prototype    bool
	subProxyName string
	logName      string

	properties []message.Property
	index      map[string]int
	modified   map[string]bool
	pushed     bool

	observers    []observer
	nextObserver ObserverHandle
}

// New instantiates definition in session with default property
// values. The proxy has no global id until it is first pushed or
// registered.
func New(definition *Definition, session Session) *Proxy {
	p := &Proxy{
		session:    session,
		definition: definition,
		location:   definition.Location,
		index:      make(map[string]int, len(definition.Properties)),
		modified:   make(map[string]bool),
	}
	for i, property := range definition.Properties {
		value := property.Default.Clone()
		value.Name = property.Name
		value.Kind = property.Kind
		p.properties = append(p.properties, value)
		p.index[property.Name] = i
	}
	return p
}

// Definition returns the definition p was created from.
func (p *Proxy) Definition() *Definition { return p.definition }

// XMLGroup returns the definition group.
func (p *Proxy) XMLGroup() string { return p.definition.Group }

// XMLName returns the definition name.
func (p *Proxy) XMLName() string { return p.definition.Name }

// Label returns the human-readable definition label.
func (p *Proxy) Label() string { return p.definition.Label }

// GlobalID returns the proxy's id, or NullID if none is assigned yet.
func (p *Proxy) GlobalID() message.ID { return p.id }

// Location returns the process roles holding live instances.
func (p *Proxy) Location() message.Location { return p.location }

// SetLocation changes the location. It has no effect once the proxy
// has a global id.
func (p *Proxy) SetLocation(location message.Location) {
	if p.id == message.NullID {
		p.location = location
	}
}

// IsPrototype reports whether p is a template instance.
func (p *Proxy) IsPrototype() bool { return p.prototype }

// SetPrototype marks p as a prototype. Prototypes have no location and
// never receive a global id.
func (p *Proxy) SetPrototype(prototype bool) {
	p.prototype = prototype
	if prototype {
		p.location = message.LocationNone
	}
}

// SubProxyName is the name under which a parent proxy holds p, or "".
func (p *Proxy) SubProxyName() string { return p.subProxyName }

// SetSubProxyName records the name under which a parent holds p.
func (p *Proxy) SetSubProxyName(name string) { p.subProxyName = name }

// LogName is an optional name used in saved documents and logs.
func (p *Proxy) LogName() string { return p.logName }

// SetLogName sets the log name.
func (p *Proxy) SetLogName(name string) { p.logName = name }

// Session returns the session p belongs to.
func (p *Proxy) Session() Session { return p.session }

// EnsureGlobalID assigns a global id on first call and registers p
// with its session. Proxies without a location keep NullID.
func (p *Proxy) EnsureGlobalID() message.ID {
	if p.id == message.NullID && p.location != message.LocationNone && !p.prototype {
		// NullID means the session could not allocate; retry later.
		if p.id = p.session.NextGlobalID(); p.id != message.NullID {
			p.session.RegisterRemoteObject(p)
		}
	}
	return p.id
}

// SetGlobalID binds p to an id allocated elsewhere, used when a state
// received from another client is instantiated locally. The proxy is
// considered already pushed.
func (p *Proxy) SetGlobalID(id message.ID) error {
	if p.id != message.NullID {
		return fmt.Errorf("proxy %s/%s already has global id %d", p.XMLGroup(), p.XMLName(), p.id)
	}
	p.id = id
	p.pushed = true
	p.session.RegisterRemoteObject(p)
	return nil
}

// PropertyNames returns property names in definition order.
func (p *Proxy) PropertyNames() []string {
	names := make([]string, len(p.properties))
	for i, property := range p.properties {
		names[i] = property.Name
	}
	return names
}

// Property returns a copy of the named property.
func (p *Proxy) Property(name string) (message.Property, bool) {
	i, ok := p.index[name]
	if !ok {
		return message.Property{}, false
	}
	return p.properties[i].Clone(), true
}

// SetProperty replaces a property value. Setting an equal value is a
// no-op and fires nothing.
func (p *Proxy) SetProperty(value message.Property) error {
	i, ok := p.index[value.Name]
	if !ok {
		return fmt.Errorf("%s/%s: %w %q", p.XMLGroup(), p.XMLName(), ErrUnknownProperty, value.Name)
	}
	if p.properties[i].Kind != value.Kind {
		return fmt.Errorf("%s/%s property %s: %w: have %s, got %s",
			p.XMLGroup(), p.XMLName(), value.Name, ErrKindMismatch, p.properties[i].Kind, value.Kind)
	}
	if p.properties[i].Equal(value) {
		return nil
	}
	p.properties[i] = value.Clone()
	p.modified[value.Name] = true
	p.fire(PropertyModified, value.Name)
	return nil
}

// SetInts sets an int property.
func (p *Proxy) SetInts(name string, values ...int64) error {
	return p.SetProperty(message.Ints(name, values...))
}

// SetDoubles sets a double property.
func (p *Proxy) SetDoubles(name string, values ...float64) error {
	return p.SetProperty(message.Doubles(name, values...))
}

// SetStrings sets a string property.
func (p *Proxy) SetStrings(name string, values ...string) error {
	return p.SetProperty(message.Strings(name, values...))
}

// SetProxies sets a proxy-reference property to the given proxies'
// ids, assigning ids where needed.
func (p *Proxy) SetProxies(name string, proxies ...*Proxy) error {
	ids := make([]message.ID, len(proxies))
	for i, referenced := range proxies {
		ids[i] = referenced.EnsureGlobalID()
	}
	return p.SetProperty(message.Proxies(name, ids...))
}

// IsModified reports whether p has property changes not yet pushed.
func (p *Proxy) IsModified() bool {
	return len(p.modified) > 0 || (!p.pushed && p.location != message.LocationNone && !p.prototype)
}

// ModifiedProperties returns the names of unpushed properties in
// definition order.
func (p *Proxy) ModifiedProperties() []string {
	var names []string
	for _, property := range p.properties {
		if p.modified[property.Name] {
			names = append(names, property.Name)
		}
	}
	return names
}

// UpdateVTKObjects pushes the proxy's state if it has never been
// pushed or has modified properties, then fires Updated.
func (p *Proxy) UpdateVTKObjects() error {
	if p.location != message.LocationNone && !p.prototype && (!p.pushed || len(p.modified) > 0) {
		p.EnsureGlobalID()
		if err := p.session.PushState(p.FullState()); err != nil {
			return fmt.Errorf("pushing %s/%s (id %d): %w", p.XMLGroup(), p.XMLName(), p.id, err)
		}
		p.pushed = true
	}
	clear(p.modified)
	p.fire(Updated, "")
	return nil
}

// UpdatePipelineInformation refreshes information properties and
// fires UpdateInformation.
func (p *Proxy) UpdatePipelineInformation() {
	p.fire(UpdateInformation, "")
}

// FullState returns the complete state of p.
func (p *Proxy) FullState() *message.Message {
	state := &message.Message{
		GlobalID:        p.id,
		Location:        p.location,
		ClientClass:     p.definition.ClientClass,
		ServerClass:     p.definition.ServerClass,
		XMLGroup:        p.definition.Group,
		XMLName:         p.definition.Name,
		XMLSubProxyName: p.subProxyName,
		Properties:      make([]message.Property, len(p.properties)),
	}
	for i, property := range p.properties {
		state.Properties[i] = property.Clone()
	}
	return state
}

// LoadState applies state to p without pushing it. Referenced proxies
// are resolved through locator so they exist locally afterwards.
// Properties the definition does not declare are ignored.
func (p *Proxy) LoadState(state *message.Message, locator Locator) error {
	if state == nil {
		return errors.New("proxy LoadState: nil state")
	}
	if state.XMLGroup != "" && (state.XMLGroup != p.XMLGroup() || state.XMLName != p.XMLName()) {
		return fmt.Errorf("proxy LoadState: state for %s/%s applied to %s/%s",
			state.XMLGroup, state.XMLName, p.XMLGroup(), p.XMLName())
	}
	if p.id == message.NullID && state.Location != message.LocationNone {
		p.location = state.Location
	}
	if state.XMLSubProxyName != "" {
		p.subProxyName = state.XMLSubProxyName
	}

	var changed []string
	for _, value := range state.Properties {
		i, ok := p.index[value.Name]
		if !ok || p.properties[i].Kind != value.Kind {
			continue
		}
		if value.Kind == message.KindProxy && locator != nil {
			for _, id := range value.Proxies {
				if id != message.NullID && id != p.id {
					locator.LocateProxy(id)
				}
			}
		}
		if !p.properties[i].Equal(value) {
			p.properties[i] = value.Clone()
			changed = append(changed, value.Name)
		}
	}
	clear(p.modified)
	for _, name := range changed {
		p.fire(PropertyModified, name)
	}
	p.fire(StateChanged, "")
	return nil
}

// Copy sets every property of p from source, which must share p's
// definition. Proxy-reference properties are copied as ids.
func (p *Proxy) Copy(source *Proxy) error {
	if source.definition.Group != p.definition.Group || source.definition.Name != p.definition.Name {
		return fmt.Errorf("copying %s/%s into %s/%s: definitions differ",
			source.XMLGroup(), source.XMLName(), p.XMLGroup(), p.XMLName())
	}
	for _, property := range source.properties {
		if err := p.SetProperty(property); err != nil {
			return err
		}
	}
	return nil
}
