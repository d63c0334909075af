package nmvm

// HostCallbacks is the presentation-layer contract the VM drives (§6 "Host
// callbacks the script runtime exposes to the presentation layer"). Every
// method that can suspend the script sets the VM's waiting flag before
// returning control to the host; the host resumes it by calling
// SignalContinue or SignalChoice.
type HostCallbacks interface {
	Say(speaker, text string)
	ShowBackground(resource, transition string, duration float32)
	ShowCharacter(id, resource string, pos ScreenPosition, customX, customY float32, transition string, duration float32)
	HideCharacter(id, transition string, duration float32)
	MoveCharacter(id string, pos ScreenPosition, customX, customY, duration float32)
	Choice(options []string) // the host must eventually call SignalChoice
	Wait(duration float32)
	Transition(kind string, duration float32)
	PlaySound(resource string)
	PlayMusic(resource string)
	StopMusic(fadeout float32)
	GotoScene(targetIP uint32)
	Call(name string) // native call; result is always Null (§4.5 "no call frame implemented")
}

// ScreenPosition mirrors nmast.ScreenPosition without importing the parser
// front-end into the VM; the compiler encodes the same four-value enum.
type ScreenPosition int32

const (
	PosLeft ScreenPosition = iota
	PosCenter
	PosRight
	PosCustom
)

// NopCallbacks is a HostCallbacks that does nothing; useful for tests and
// headless execution (e.g. build-time reachability smoke runs).
type NopCallbacks struct{}

func (NopCallbacks) Say(string, string)                                                    {}
func (NopCallbacks) ShowBackground(string, string, float32)                                 {}
func (NopCallbacks) ShowCharacter(string, string, ScreenPosition, float32, float32, string, float32) {}
func (NopCallbacks) HideCharacter(string, string, float32)                                  {}
func (NopCallbacks) MoveCharacter(string, ScreenPosition, float32, float32, float32)         {}
func (NopCallbacks) Choice([]string)                                                        {}
func (NopCallbacks) Wait(float32)                                                           {}
func (NopCallbacks) Transition(string, float32)                                             {}
func (NopCallbacks) PlaySound(string)                                                       {}
func (NopCallbacks) PlayMusic(string)                                                       {}
func (NopCallbacks) StopMusic(float32)                                                      {}
func (NopCallbacks) GotoScene(uint32)                                                        {}
func (NopCallbacks) Call(string)                                                             {}
