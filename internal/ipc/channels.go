package ipc

// Requests from the renderer to the owner. All are synchronous except
// ChannelDereference.
const (
	ChannelRequire            = "ATOM_BROWSER_REQUIRE"
	ChannelGetBuiltin         = "ATOM_BROWSER_GET_BUILTIN"
	ChannelCurrentWindow      = "ATOM_BROWSER_CURRENT_WINDOW"
	ChannelCurrentWebContents = "ATOM_BROWSER_CURRENT_WEB_CONTENTS"
	ChannelGlobal             = "ATOM_BROWSER_GLOBAL"
	ChannelGuestWebContents   = "ATOM_BROWSER_GUEST_WEB_CONTENTS"
	ChannelConstructor        = "ATOM_BROWSER_CONSTRUCTOR"
	ChannelFunctionCall       = "ATOM_BROWSER_FUNCTION_CALL"
	ChannelMemberConstructor  = "ATOM_BROWSER_MEMBER_CONSTRUCTOR"
	ChannelMemberCall         = "ATOM_BROWSER_MEMBER_CALL"
	ChannelMemberGet          = "ATOM_BROWSER_MEMBER_GET"
	ChannelMemberSet          = "ATOM_BROWSER_MEMBER_SET"
	ChannelDescribe           = "ATOM_BROWSER_DESCRIBE"
	ChannelDereference        = "ATOM_BROWSER_DEREFERENCE"
)

// Notifications from the owner to the renderer.
const (
	ChannelCallback        = "ATOM_RENDERER_CALLBACK"
	ChannelReleaseCallback = "ATOM_RENDERER_RELEASE_CALLBACK"
)
