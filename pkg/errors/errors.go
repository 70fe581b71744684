package errors

import "errors"

// Kind 业务错误类别
// Handler 层依据类别映射 HTTP 状态码，避免对错误文案做字符串匹配
type Kind int

const (
	KindUnknown    Kind = iota
	KindValidation      // 入参校验失败，未产生任何副作用
	KindConflict        // 时段冲突或并发修改，整批拒绝
	KindNotFound        // 目标记录不存在
	KindSync            // 外部日历同步失败（不阻断业务操作）
)

// Error 带类别标签的业务错误
type Error struct {
	kind Kind
	msg  string
}

func (e *Error) Error() string { return e.msg }

// Kind 返回错误类别
func (e *Error) Kind() Kind { return e.kind }

// New 创建带类别的业务错误
func New(kind Kind, msg string) *Error {
	return &Error{kind: kind, msg: msg}
}

// KindOf 提取错误链中的业务类别，非业务错误返回 KindUnknown
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.kind
	}
	return KindUnknown
}

// ── 调度模块业务错误 ──

var (
	// ErrInvalidTimeFormat 日期/时间为空或格式不合法
	ErrInvalidTimeFormat = New(KindValidation, "日期或时间格式不合法")
	// ErrInvalidRange 结束时间未晚于开始时间
	ErrInvalidRange = New(KindValidation, "结束时间必须晚于开始时间")
	// ErrInvalidFee 费用为负
	ErrInvalidFee = New(KindValidation, "费用不能为负数")
	// ErrEmptyRecurrence 周期展开结果为空（契约违例，调用方缺陷）
	ErrEmptyRecurrence = New(KindValidation, "周期展开结果为空")
	// ErrInvalidStatus 出勤状态流转不合法
	ErrInvalidStatus = New(KindValidation, "出勤状态流转不合法")
	// ErrSchedulingConflict 候选时段与该会员已有预约重叠，整批拒绝
	ErrSchedulingConflict = New(KindConflict, "该时段与已有预约冲突")
	// ErrOptimisticLock 乐观锁冲突：记录已被其他操作修改
	ErrOptimisticLock = New(KindConflict, "数据已被其他操作修改，请刷新后重试")
	// ErrAppointmentNotFound 预约不存在
	ErrAppointmentNotFound = New(KindNotFound, "预约不存在")
)
