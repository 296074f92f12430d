package rpc

import (
	"fmt"

	"github.com/oceanweave/portod/pkg/container"
	"github.com/oceanweave/portod/pkg/credential"
	"github.com/oceanweave/portod/pkg/errkind"
	"github.com/oceanweave/portod/pkg/holder"
	"github.com/oceanweave/portod/pkg/value"
	"github.com/oceanweave/portod/pkg/volume"
	log "github.com/sirupsen/logrus"
)

// Build-time version strings, overridable via -ldflags the way the
// teacher's own main.go leaves GIT_TAG/GIT_REVISION equivalents for the
// linker to fill in.
var (
	VersionTag      = "dev"
	VersionRevision = "unknown"
)

// Dispatcher routes a decoded Request to exactly one handler against a
// container holder, a volume store and the property/data registries,
// per spec.md §4.7. It is single-threaded by construction: Dispatch is
// meant to be called from one goroutine reading one connection at a
// time, matching spec.md §5's "single-threaded cooperative" scheduling
// model — there is no internal locking here because pkg/holder and
// pkg/container already guard their own state.
type Dispatcher struct {
	Holder       *holder.Holder
	Volumes      *volume.Store
	PropertySet  *value.Registry
	DataSet      *value.Registry
}

// Dispatch decodes which one-of variant is populated and routes to the
// matching handler. Exactly one variant must be set; zero or multiple
// is InvalidMethod. A panic anywhere in a handler is converted to a
// single Unknown result with a textual message, matching the
// catch-all guard original_source/rpc.cpp's HandleRpcRequest applies
// around every handler call.
//
// The second return value is false for the two volume RPCs whose
// success suppresses the synchronous reply (spec.md §4.7) — true
// otherwise.
func (d *Dispatcher) Dispatch(req *Request, cred credential.Credential) (rsp *Response, sendReply bool) {
	rsp = &Response{}
	sendReply = true

	defer func() {
		if r := recover(); r != nil {
			rsp = &Response{}
			rsp.ErrorKind = errkind.Unknown.String()
			rsp.ErrorMsg = fmt.Sprintf("unexpected failure: %v", r)
		}
	}()

	if n := req.populatedCount(); n != 1 {
		setError(rsp, errkind.Newf(errkind.InvalidMethod, "invalid RPC method: %d variants set, want exactly 1", n))
		return rsp, true
	}

	var err error
	switch {
	case req.Create != nil:
		err = d.create(req.Create, cred)
	case req.Destroy != nil:
		err = d.destroy(req.Destroy, cred)
	case req.List != nil:
		err = d.list(rsp)
	case req.GetProperty != nil:
		err = d.getProperty(req.GetProperty, rsp)
	case req.SetProperty != nil:
		err = d.setProperty(req.SetProperty, cred)
	case req.GetData != nil:
		err = d.getData(req.GetData, rsp)
	case req.Start != nil:
		err = d.withContainer(req.Start.Name, cred, func(c *container.Container) error { return c.Start() })
	case req.Stop != nil:
		err = d.withContainer(req.Stop.Name, cred, func(c *container.Container) error { return c.Stop() })
	case req.Pause != nil:
		err = d.withContainer(req.Pause.Name, cred, func(c *container.Container) error { return c.Pause() })
	case req.Resume != nil:
		err = d.withContainer(req.Resume.Name, cred, func(c *container.Container) error { return c.Resume() })
	case req.Kill != nil:
		err = d.withContainer(req.Kill.Name, cred, func(c *container.Container) error { return c.Kill(req.Kill.Sig) })
	case req.PropertyList != nil:
		err = descriptorList(d.PropertySet, &rsp.PropertyList)
	case req.DataList != nil:
		err = descriptorList(d.DataSet, &rsp.DataList)
	case req.Version != nil:
		rsp.Version = &VersionResponse{Tag: VersionTag, Revision: VersionRevision}
	case req.CreateVolume != nil:
		err = d.createVolume(req.CreateVolume, cred)
		if err == nil {
			sendReply = false
		}
	case req.DestroyVolume != nil:
		err = d.destroyVolume(req.DestroyVolume, cred)
		if err == nil {
			sendReply = false
		}
	case req.ListVolumes != nil:
		err = d.listVolumes(rsp)
	}

	if err != nil {
		rsp = &Response{}
		setError(rsp, err)
		log.WithError(err).Debug("rpc handler returned error")
	}
	return rsp, sendReply
}

func setError(rsp *Response, err error) {
	if e, ok := err.(*errkind.Error); ok {
		rsp.ErrorKind = e.Kind.String()
		rsp.ErrorMsg = e.Msg
		return
	}
	rsp.ErrorKind = errkind.Unknown.String()
	rsp.ErrorMsg = err.Error()
}

func (d *Dispatcher) create(req *CreateRequest, cred credential.Credential) error {
	_, err := d.Holder.Create(req.Name, cred)
	return err
}

func (d *Dispatcher) destroy(req *DestroyRequest, cred credential.Credential) error {
	// The permission check is performed against whatever container
	// currently exists under this name, but the reference is not
	// retained past the check: Destroy resolves the name itself, so
	// the shared holder lookup never outlives a single statement here,
	// mirroring original_source/rpc.cpp's DestroyContainer comment
	// about not holding a container shared_ptr across Destroy.
	if c, ok := d.Holder.Get(req.Name); ok {
		if !c.Props.Permitted(cred) {
			return errkind.Newf(errkind.PermissionDenied, "not permitted to destroy %q", req.Name)
		}
	}
	return d.Holder.Destroy(req.Name)
}

func (d *Dispatcher) list(rsp *Response) error {
	rsp.List = &ListResponse{Names: d.Holder.List()}
	return nil
}

func (d *Dispatcher) getProperty(req *GetPropertyRequest, rsp *Response) error {
	c, ok := d.Holder.Get(req.Name)
	if !ok {
		return errkind.Newf(errkind.ContainerDoesNotExist, "container %q does not exist", req.Name)
	}
	val, err := c.Props.VariantSet().GetRaw(req.Property)
	if err != nil {
		return err
	}
	rsp.GetProperty = &GetPropertyResponse{Value: val}
	return nil
}

func (d *Dispatcher) setProperty(req *SetPropertyRequest, cred credential.Credential) error {
	c, ok := d.Holder.Get(req.Name)
	if !ok {
		return errkind.Newf(errkind.ContainerDoesNotExist, "container %q does not exist", req.Name)
	}
	if !c.Props.Permitted(cred) {
		return errkind.Newf(errkind.PermissionDenied, "not permitted to modify %q", req.Name)
	}
	return c.Props.Set(req.Property, req.Value, cred.IsRoot())
}

func (d *Dispatcher) getData(req *GetDataRequest, rsp *Response) error {
	c, ok := d.Holder.Get(req.Name)
	if !ok {
		return errkind.Newf(errkind.ContainerDoesNotExist, "container %q does not exist", req.Name)
	}
	c.RefreshStats()
	val, err := c.Data.GetRaw(req.Data)
	if err != nil {
		return err
	}
	rsp.GetData = &GetDataResponse{Value: val}
	return nil
}

func (d *Dispatcher) withContainer(name string, cred credential.Credential, op func(*container.Container) error) error {
	c, ok := d.Holder.Get(name)
	if !ok {
		return errkind.Newf(errkind.ContainerDoesNotExist, "container %q does not exist", name)
	}
	if !c.Props.Permitted(cred) {
		return errkind.Newf(errkind.PermissionDenied, "not permitted to operate on %q", name)
	}
	return op(c)
}

// descriptorList enumerates registry's visible (non-Hidden) descriptors
// into *out, backing both propertylist and datalist.
func descriptorList(registry *value.Registry, out **DescriptorListResponse) error {
	names := registry.VisibleNames()
	entries := make([]DescriptorEntry, 0, len(names))
	for _, name := range names {
		desc, err := registry.Get(name)
		if err != nil {
			continue
		}
		entries = append(entries, DescriptorEntry{Name: desc.Name, Desc: desc.Desc})
	}
	*out = &DescriptorListResponse{Entries: entries}
	return nil
}

func (d *Dispatcher) createVolume(req *CreateVolumeRequest, cred credential.Credential) error {
	_, err := d.Volumes.Create(req.Name, req.Flags, cred)
	return err
}

func (d *Dispatcher) destroyVolume(req *DestroyVolumeRequest, cred credential.Credential) error {
	if v, ok := d.Volumes.Get(req.Name); ok {
		if !credential.Permitted(cred, v.Owner) {
			return errkind.Newf(errkind.PermissionDenied, "not permitted to destroy volume %q", req.Name)
		}
		return d.Volumes.Destroy(req.Name)
	}
	// original_source/rpc.cpp's DestroyVolume dereferences the nil
	// volume pointer to build this message (volume->GetName() on a
	// missing volume) — not reproduced here; req.Name is already the
	// name that was looked up, so there is no pointer to dereference.
	return errkind.Newf(errkind.VolumeDoesNotExist, "volume %q does not exist", req.Name)
}

func (d *Dispatcher) listVolumes(rsp *Response) error {
	names := d.Volumes.List()
	descs := make([]VolumeDescriptor, 0, len(names))
	for _, name := range names {
		v, ok := d.Volumes.Get(name)
		if !ok {
			continue
		}
		descs = append(descs, VolumeDescriptor{Name: v.Name, Source: v.Path, Flags: v.Backend})
	}
	rsp.ListVolumes = &ListVolumesResponse{Volumes: descs}
	return nil
}
