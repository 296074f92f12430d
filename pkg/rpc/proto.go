// Package rpc implements the RPC dispatcher of spec.md §4.7: a single
// entry point that decodes a one-of request, resolves it against a
// peer credential, routes to exactly one handler, and encodes a
// response. Request/response shapes stand in for what spec.md places
// out of scope as "wire-schema generated stubs" — plain Go structs
// rather than protoc-generated types. The pack carries no .proto file;
// the one-of request shape and per-variant field names are grounded on
// original_source/rpc.hpp's declarations and the handler bodies in
// original_source/rpc.cpp.
package rpc

import "syscall"

// Request is the one-of over every RPC variant. Exactly one field may
// be non-nil; zero or multiple is InvalidMethod.
type Request struct {
	Create  *CreateRequest
	Destroy *DestroyRequest
	List    *ListRequest

	GetProperty *GetPropertyRequest
	SetProperty *SetPropertyRequest
	GetData     *GetDataRequest

	Start  *StartRequest
	Stop   *StopRequest
	Pause  *PauseRequest
	Resume *ResumeRequest
	Kill   *KillRequest

	PropertyList *PropertyListRequest
	DataList     *DataListRequest
	Version      *VersionRequest

	CreateVolume  *CreateVolumeRequest
	DestroyVolume *DestroyVolumeRequest
	ListVolumes   *ListVolumesRequest
}

// populatedCount returns how many one-of fields are set, for the
// exactly-one-variant check the dispatcher performs first.
func (r *Request) populatedCount() int {
	n := 0
	fields := []bool{
		r.Create != nil, r.Destroy != nil, r.List != nil,
		r.GetProperty != nil, r.SetProperty != nil, r.GetData != nil,
		r.Start != nil, r.Stop != nil, r.Pause != nil, r.Resume != nil, r.Kill != nil,
		r.PropertyList != nil, r.DataList != nil, r.Version != nil,
		r.CreateVolume != nil, r.DestroyVolume != nil, r.ListVolumes != nil,
	}
	for _, set := range fields {
		if set {
			n++
		}
	}
	return n
}

type CreateRequest struct{ Name string }
type DestroyRequest struct{ Name string }
type ListRequest struct{}

type GetPropertyRequest struct{ Name, Property string }
type SetPropertyRequest struct{ Name, Property, Value string }
type GetDataRequest struct{ Name, Data string }

type StartRequest struct{ Name string }
type StopRequest struct{ Name string }
type PauseRequest struct{ Name string }
type ResumeRequest struct{ Name string }
type KillRequest struct {
	Name string
	Sig  syscall.Signal
}

type PropertyListRequest struct{}
type DataListRequest struct{}
type VersionRequest struct{}

type CreateVolumeRequest struct {
	Name, Source string
	Quota        uint64
	Flags        string
}
type DestroyVolumeRequest struct{ Name string }
type ListVolumesRequest struct{}

// Response mirrors Request: one typed payload field plus the common
// (error_kind, error_message) pair every handler sets.
type Response struct {
	ErrorKind string
	ErrorMsg  string

	List         *ListResponse
	GetProperty  *GetPropertyResponse
	GetData      *GetDataResponse
	PropertyList *DescriptorListResponse
	DataList     *DescriptorListResponse
	Version      *VersionResponse
	ListVolumes  *ListVolumesResponse
}

type ListResponse struct{ Names []string }
type GetPropertyResponse struct{ Value string }
type GetDataResponse struct{ Value string }

type DescriptorEntry struct{ Name, Desc string }
type DescriptorListResponse struct{ Entries []DescriptorEntry }

type VersionResponse struct{ Tag, Revision string }

type VolumeDescriptor struct {
	Name, Source string
	Quota        uint64
	Flags        string
}
type ListVolumesResponse struct{ Volumes []VolumeDescriptor }
