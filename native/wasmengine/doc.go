// Package wasmengine hosts a libfibre build compiled to WebAssembly and
// exposes it as a native.Engine.
//
// The guest module runs inside wazero. It must export its linear memory and
// the following functions (all handles are i32 guest pointers, all callback
// contexts are i64 values chosen by the host):
//
//	fibre_malloc(size i32) i32
//	fibre_free(ptr i32)
//	libfibre_get_version() i32                   pointer to {u16 major, minor, patch}
//	libfibre_open() i32                          instance, 0 on failure
//	libfibre_close(inst i32)
//	libfibre_invoke(cb i32, arg i32)             runs a callback the guest scheduled
//	libfibre_start_discovery(inst, path_ptr, path_len i32, ctx i64) i32
//	libfibre_stop_discovery(discovery i32)
//	libfibre_subscribe_to_interface(intf i32)
//	libfibre_get_attribute(obj, attr, out_ptr i32) i32    status; sub-object written to out_ptr
//	libfibre_start_call(obj, fn, tx_ptr, tx_len, rx_ptr, rx_len i32, ctx i64) i32
//	libfibre_cancel_call(call i32)
//
// The host provides the "fibre_host" import module:
//
//	post(cb, arg i32) i32
//	register_event(fd, mask, cb, arg i32) i32
//	deregister_event(fd i32) i32
//	call_later(delay_ns i64, cb, arg i32) i64
//	cancel_timer(id i64) i32
//	construct_object(obj, intf, name_ptr, name_len i32)
//	destroy_object(obj i32)
//	on_found_object(ctx i64, obj i32)
//	on_discovery_stopped(ctx i64, status i32)
//	on_attribute_added(intf, attr, name_ptr, name_len, subintf, subname_ptr, subname_len i32)
//	on_attribute_removed(intf, attr i32)
//	on_function_added(intf, fn, name_ptr, name_len, inputs_ptr, outputs_ptr i32)
//	on_function_removed(intf, fn i32)
//	on_call_completed(ctx i64, status i32, end_ptr i32)
//
// Argument lists passed to on_function_added are arrays of
// {name_ptr, name_len, codec_ptr, codec_len} u32 quadruples terminated by an
// entry whose name_ptr is zero.
//
// The discovery path is only valid for the duration of
// libfibre_start_discovery. Call buffers stay allocated until the matching
// on_call_completed.
//
// Guest notifications are queued on the reactor rather than delivered from
// inside the host call, so the runtime never re-enters the guest while it is
// executing.
package wasmengine
